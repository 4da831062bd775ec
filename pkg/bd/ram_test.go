package bd

import "testing"

func TestRAMErasesToAllOnesByDefault(t *testing.T) {
	ram, err := NewRAM(testGeo())
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, ram.geo.BlockSize)
	if err := ram.Read(0, 0, buf); err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != 0xff {
			t.Fatalf("byte %d of a fresh block = 0x%02x, want 0xff", i, b)
		}
	}

	if err := ram.Prog(0, 0, []byte{0x00}); err != nil {
		t.Fatal(err)
	}
	if err := ram.Erase(0); err != nil {
		t.Fatal(err)
	}
	if err := ram.Read(0, 0, buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0xff {
		t.Fatalf("byte 0 after re-erase = 0x%02x, want 0xff", buf[0])
	}
}

func TestRAMSetEraseValueOverridesFill(t *testing.T) {
	ram, err := NewRAM(testGeo())
	if err != nil {
		t.Fatal(err)
	}
	ram.SetEraseValue(0x00)
	if err := ram.Erase(1); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, ram.geo.BlockSize)
	if err := ram.Read(1, 0, buf); err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != 0x00 {
			t.Fatalf("byte %d = 0x%02x, want 0x00 after SetEraseValue", i, b)
		}
	}
}
