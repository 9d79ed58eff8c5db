package chipdb

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeJEDEC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BF2641", "BF2641"},
		{"bf 26 41", "BF2641"},
		{"0xBF2641", "BF2641"},
		{"0XBF2641", "BF2641"},
		{"0xbf 0x26 0x41", "BF2641"},
		{"EF-40-16", "EF4016"},
		{"BF26", ""},      // too short
		{"BF264100", ""},  // too long
		{"", ""},
		{"not hex!", ""},
	}
	for _, tt := range tests {
		if got := NormalizeJEDEC(tt.in); got != tt.want {
			t.Errorf("NormalizeJEDEC(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeJEDECEquality(t *testing.T) {
	spellings := []string{"BF2641", "bf2641", "0xBF2641", "bf 26 41", "BF 26 41", "0xbf,0x26,0x41"}
	want := NormalizeJEDEC(spellings[0])
	for _, s := range spellings[1:] {
		if got := NormalizeJEDEC(s); got != want {
			t.Errorf("NormalizeJEDEC(%q) = %q, want %q", s, got, want)
		}
	}
}

const sampleCSV = `chip_model,company,chip_family,capacity (Mbit),JEDEC ID,typ_page_program_ms,typ_4KB_erase_ms,typ_32KB_erase_ms,typ_64KB_erase_ms,50MHz_read_speed_MBps
W25Q128JV,Winbond,W25Q,128,EF4018,0.7,45,120,150,6.2
SST26VF032B,Microchip,SST26,32,BF2642,1.5,18,,25,5.9
MX25L6406E,Macronix,MX25L,64,C22017,1.4,60,,,6.0
`

func TestLoad(t *testing.T) {
	db, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(db.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(db.Rows))
	}

	r, ok := db.Lookup("EF4018")
	if !ok {
		t.Fatal("EF4018 not found")
	}
	if r.Model != "W25Q128JV" || r.Company != "Winbond" || r.Family != "W25Q" {
		t.Errorf("identity fields = %q %q %q", r.Model, r.Company, r.Family)
	}
	if r.PageProgMs != 0.7 || r.Erase4KMs != 45 || r.Erase32KMs != 120 || r.Erase64KMs != 150 {
		t.Errorf("timings = %v %v %v %v", r.PageProgMs, r.Erase4KMs, r.Erase32KMs, r.Erase64KMs)
	}
	if r.ReadRefMBps != 6.2 {
		t.Errorf("read speed = %v", r.ReadRefMBps)
	}

	// Empty timing cells stay absent.
	r2, _ := db.Lookup("BF2642")
	if r2.Erase32KMs > 0 {
		t.Errorf("empty 32KB cell parsed as %v", r2.Erase32KMs)
	}
}

func TestLoadEraseColumnOrder(t *testing.T) {
	// The 4KB and 64KB column names overlap as substrings; make sure each
	// lands in its own field.
	csv := "JEDEC ID,typ_64KB_erase_ms,typ_4KB_erase_ms\nEF4018,150,45\n"
	db, err := Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := db.Rows[0]
	if r.Erase4KMs != 45 {
		t.Errorf("4KB erase = %v, want 45", r.Erase4KMs)
	}
	if r.Erase64KMs != 150 {
		t.Errorf("64KB erase = %v, want 150", r.Erase64KMs)
	}
}

func TestLoadTabSeparated(t *testing.T) {
	csv := "JEDEC ID\tchip_model\tcapacity (Mbit)\nEF4016\tW25Q32JV\t32\n"
	db, err := Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r, ok := db.Lookup("EF4016")
	if !ok {
		t.Fatal("EF4016 not found")
	}
	if r.Model != "W25Q32JV" {
		t.Errorf("model = %q", r.Model)
	}
}

func TestLoadMissingJEDECColumn(t *testing.T) {
	csv := "chip_model,company\nW25Q128JV,Winbond\n"
	if _, err := Load(strings.NewReader(csv)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load(strings.NewReader("")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCapacityBytes(t *testing.T) {
	db, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	n, ok := db.CapacityBytes("EF4018")
	if !ok {
		t.Fatal("no capacity for EF4018")
	}
	if n != 128*131072 {
		t.Errorf("capacity = %d, want %d", n, 128*131072)
	}

	if _, ok := db.CapacityBytes("000000"); ok {
		t.Error("unknown id must not resolve")
	}
	if _, ok := db.CapacityBytes(""); ok {
		t.Error("empty id must not resolve")
	}
}
