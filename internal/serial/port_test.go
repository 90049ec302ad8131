package serial

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestOpener(t *testing.T) {
	tests := []struct {
		driver string
		want   OpenFunc
	}{
		{"", Open},
		{DriverTarm, Open},
		{DriverBugst, OpenBugst},
	}
	for _, tc := range tests {
		fn, err := Opener(tc.driver)
		if err != nil {
			t.Fatalf("%q: %v", tc.driver, err)
		}
		if reflect.ValueOf(fn).Pointer() != reflect.ValueOf(tc.want).Pointer() {
			t.Fatalf("%q: wrong opener", tc.driver)
		}
	}
	if _, err := Opener("jacobsa"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestOpenMissingDevice(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyNONE")
	for _, open := range []OpenFunc{Open, OpenBugst} {
		if p, err := open(missing, 115200, 0); err == nil {
			_ = p.Close()
			t.Fatalf("expected error opening %s", missing)
		}
	}
}
