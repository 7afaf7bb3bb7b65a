package enocean

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

func TestParse_WellFormedLines(t *testing.T) {
	input := strings.Join([]string{
		"# EnOcean channels",
		"",
		"0017A2B3,A5-02-05,Outdoor Temp,temp1.txt",
		"  0x0017A2B4 , A5-04-01 , Hall Humidity , hum1.txt, temp2.txt   # trailing comment",
		"FFFFFFFF,F6-02-01,Rocker,/abs/path/rocker.txt\r",
		"",
	}, "\n")

	reg, err := Parse(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []ChannelRecord{
		{ID: 0x0017A2B3, Profile: "A5-02-05", Description: "Outdoor Temp", Sources: []string{"temp1.txt"}},
		{ID: 0x0017A2B4, Profile: "A5-04-01", Description: "Hall Humidity", Sources: []string{"hum1.txt", "temp2.txt"}},
		{ID: 0xFFFFFFFF, Profile: "F6-02-01", Description: "Rocker", Sources: []string{"/abs/path/rocker.txt"}},
	}
	if reg.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", reg.Len(), len(want))
	}
	for i, w := range want {
		got, ok := reg.Channel(i)
		if !ok {
			t.Fatalf("Channel(%d) missing", i)
		}
		if got.ID != w.ID || got.Profile != w.Profile || got.Description != w.Description {
			t.Errorf("Channel(%d) = %+v, want %+v", i, got, w)
		}
		if strings.Join(got.Sources, "|") != strings.Join(w.Sources, "|") {
			t.Errorf("Channel(%d).Sources = %q, want %q", i, got.Sources, w.Sources)
		}
	}
}

func TestParse_TooFewFieldsYieldsNoRecords(t *testing.T) {
	logger := &mockLogger{}
	reg, err := Parse(strings.NewReader("A1,EEP-1\n"), logger)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
	if logger.count("warn", "skipping") != 1 {
		t.Errorf("expected one skip warning, got entries %+v", logger.entries)
	}
}

func TestDecodeLine_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"id only", "0017A2B3\n"},
		{"id and profile", "0017A2B3,A5-02-05\n"},
		{"no source", "0017A2B3,A5-02-05,Outdoor Temp\n"},
		{"trailing comma no source", "0017A2B3,A5-02-05,Outdoor Temp,\n"},
		{"comment before source", "0017A2B3,A5-02-05,Outdoor Temp,#temp1.txt\n"},
		{"empty profile", "0017A2B3,,Outdoor Temp,temp1.txt\n"},
		{"empty id", ",A5-02-05,Outdoor Temp,temp1.txt\n"},
		{"non-hex id", "XYZ,A5-02-05,Outdoor Temp,temp1.txt\n"},
		{"id too wide", "1FFFFFFFF,A5-02-05,Outdoor Temp,temp1.txt\n"},
		{"NUL before source", "0017A2B3,A5-02-05,Outdoor Temp,\x00temp1.txt\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeLine(tt.line)
			if !errors.Is(err, ErrMalformedLine) {
				t.Errorf("decodeLine(%q) error = %v, want ErrMalformedLine", tt.line, err)
			}
		})
	}
}

func TestDecodeLine_BlankAndComment(t *testing.T) {
	for _, line := range []string{"", "\n", "   \r\n", "# comment\n", "\t# indented\n"} {
		if _, _, err := decodeLine(line); !errors.Is(err, ErrBlankLine) {
			t.Errorf("decodeLine(%q) error = %v, want ErrBlankLine", line, err)
		}
	}
}

func TestDecodeLine_EmptySourceSkipped(t *testing.T) {
	rec, warnings, err := decodeLine("0017A2B3,A5-02-05,Outdoor Temp,a.txt,,b.txt\n")
	if err != nil {
		t.Fatalf("decodeLine() error = %v", err)
	}
	if strings.Join(rec.Sources, ",") != "a.txt,b.txt" {
		t.Errorf("Sources = %q", rec.Sources)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %q, want one", warnings)
	}
}

func TestDecodeLine_SourceLimit(t *testing.T) {
	var sources []string
	for i := 0; i < MaxSources+1; i++ {
		sources = append(sources, fmt.Sprintf("s%d.txt", i))
	}
	rec, warnings, err := decodeLine(channelLine(1, sources...))
	if err != nil {
		t.Fatalf("decodeLine() error = %v", err)
	}
	if len(rec.Sources) != MaxSources {
		t.Errorf("len(Sources) = %d, want %d", len(rec.Sources), MaxSources)
	}
	if rec.Sources[MaxSources-1] != fmt.Sprintf("s%d.txt", MaxSources-1) {
		t.Errorf("last source = %q", rec.Sources[MaxSources-1])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "1 sources") {
		t.Errorf("warnings = %q", warnings)
	}
}

func TestParse_ChannelOverflow(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxChannels+4; i++ {
		b.WriteString(channelLine(uint32(i), "v.txt"))
	}

	logger := &mockLogger{}
	reg, err := Parse(strings.NewReader(b.String()), logger)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if reg.Len() != MaxChannels {
		t.Errorf("Len() = %d, want %d", reg.Len(), MaxChannels)
	}
	if logger.count("warn", "overflow") != 1 {
		t.Errorf("expected one overflow warning")
	}
	last, _ := reg.Channel(MaxChannels - 1)
	if last.ID != MaxChannels-1 {
		t.Errorf("last ID = %d, want %d", last.ID, MaxChannels-1)
	}
}

func TestParse_ExactlyMaxChannelsNoWarning(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxChannels; i++ {
		b.WriteString(channelLine(uint32(i), "v.txt"))
	}
	b.WriteString("# trailing comment\n")

	logger := &mockLogger{}
	reg, err := Parse(strings.NewReader(b.String()), logger)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if reg.Len() != MaxChannels {
		t.Errorf("Len() = %d, want %d", reg.Len(), MaxChannels)
	}
	if logger.count("warn", "overflow") != 0 {
		t.Errorf("unexpected overflow warning")
	}
}

func TestParse_LastLineWithoutNewline(t *testing.T) {
	reg, err := Parse(strings.NewReader("00000001,A5-02-05,One,a.txt\n00000002,A5-02-05,Two,b.txt"), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestParse_ReadErrorOnPartialLine(t *testing.T) {
	errDisk := errors.New("input/output error")
	r := io.MultiReader(
		strings.NewReader("00000001,A5-02-05,One,a.txt\n00000002,A5-02-05,Two,b.t"),
		iotest.ErrReader(errDisk),
	)

	reg, err := Parse(r, nil)
	if !errors.Is(err, errDisk) {
		t.Fatalf("Parse() error = %v, want the read error", err)
	}
	if reg != nil {
		t.Errorf("Parse() returned a registry with %d records on read error", reg.Len())
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, n, err := Load(filepath.Join(dir, "missing.txt"), nil)
		if !errors.Is(err, ErrConfigOpen) {
			t.Errorf("Load() error = %v, want ErrConfigOpen", err)
		}
		if n != 0 {
			t.Errorf("count = %d, want 0", n)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, dir, "empty.txt", "")
		reg, n, err := Load(path, nil)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if n != 0 || reg.Len() != 0 {
			t.Errorf("count = %d, Len() = %d, want 0", n, reg.Len())
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := writeFile(t, dir, "eofilter.txt", channelLine(1, "a.txt", "b.txt")+channelLine(2, "c.txt"))
		reg, n, err := Load(path, nil)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if n != 2 {
			t.Errorf("count = %d, want 2", n)
		}
		if reg.SourceCount() != 3 {
			t.Errorf("SourceCount() = %d, want 3", reg.SourceCount())
		}
	})
}

func TestFormatID(t *testing.T) {
	if got := FormatID(0x17A2B3); got != "0017A2B3" {
		t.Errorf("FormatID() = %q", got)
	}
	rec := ChannelRecord{ID: 0xFFFFFFFF}
	if got := rec.IDString(); got != "FFFFFFFF" {
		t.Errorf("IDString() = %q", got)
	}
}

func TestRegistry_CopiesAndCaps(t *testing.T) {
	records := make([]ChannelRecord, MaxChannels+1)
	for i := range records {
		records[i] = ChannelRecord{ID: uint32(i), Sources: []string{"a"}}
	}
	reg := NewRegistry(records)
	if reg.Len() != MaxChannels {
		t.Errorf("Len() = %d, want %d", reg.Len(), MaxChannels)
	}

	records[0].ID = 999
	if got, _ := reg.Channel(0); got.ID != 0 {
		t.Errorf("registry shares caller slice")
	}

	out := reg.Records()
	out[1].ID = 999
	if got, _ := reg.Channel(1); got.ID != 1 {
		t.Errorf("Records() shares registry slice")
	}

	if _, ok := reg.Channel(-1); ok {
		t.Error("Channel(-1) ok")
	}
	if _, ok := reg.Channel(MaxChannels); ok {
		t.Error("Channel(MaxChannels) ok")
	}

	var nilReg *Registry
	if nilReg.Len() != 0 {
		t.Error("nil registry Len() != 0")
	}
}

func TestRegistry_IndexOf(t *testing.T) {
	reg := NewRegistry([]ChannelRecord{
		{ID: 1, Profile: "A5-02-05", Sources: []string{"a"}},
		{ID: 2, Sources: []string{"b", "c"}},
	})
	tests := []struct {
		name string
		rec  ChannelRecord
		want int
	}{
		{"first", ChannelRecord{ID: 1, Profile: "A5-02-05", Sources: []string{"a"}}, 0},
		{"description ignored", ChannelRecord{ID: 2, Description: "x", Sources: []string{"b", "c"}}, 1},
		{"other profile", ChannelRecord{ID: 1, Sources: []string{"a"}}, -1},
		{"other sources", ChannelRecord{ID: 2, Sources: []string{"c", "b"}}, -1},
		{"unknown id", ChannelRecord{ID: 3, Sources: []string{"a"}}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.IndexOf(tt.rec); got != tt.want {
				t.Errorf("IndexOf() = %d, want %d", got, tt.want)
			}
		})
	}

	var nilReg *Registry
	if nilReg.IndexOf(ChannelRecord{ID: 1}) != -1 {
		t.Error("nil registry IndexOf() != -1")
	}
}
