// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package errkind_test

import (
	"testing"

	"code.hybscloud.com/axisdma/errkind"
)

func TestKind_String(t *testing.T) {
	cases := []struct {
		k    errkind.Kind
		want string
	}{
		{0, "none"},
		{errkind.FIFO, "FIFO"},
		{errkind.FIFO | errkind.LEN, "FIFO|LEN"},
		{errkind.BUS | errkind.EOFE, "BUS|EOFE"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.k, got, c.want)
		}
	}
}

func TestKind_Has(t *testing.T) {
	k := errkind.FIFO | errkind.MAX
	if !k.Has(errkind.FIFO) || !k.Has(errkind.MAX) {
		t.Fatal("Has() false for a set bit")
	}
	if k.Has(errkind.BUS) {
		t.Fatal("Has() true for an unset bit")
	}
}

func TestOf(t *testing.T) {
	if errkind.Of(nil) != errkind.OK {
		t.Fatal("Of(nil) != OK")
	}
	if errkind.Of(errkind.DestinationClaimed) != errkind.DestinationClaimed {
		t.Fatal("Of(Code) did not round-trip")
	}
	if errkind.Of(errUnrelated{}) != errkind.Error {
		t.Fatal("Of(unrelated error) did not default to Error")
	}
}

type errUnrelated struct{}

func (errUnrelated) Error() string { return "unrelated" }
