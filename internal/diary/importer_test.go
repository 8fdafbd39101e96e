package diary

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     int
		wantOpen bool
		wantErr  bool
	}{
		{name: "with header", in: "asleep_at,awake_at\n2026-10-01T23:00:00Z,2026-10-02T07:00:00Z\n", want: 1},
		{name: "without header", in: "2026-10-01T23:00:00Z,2026-10-02T07:00:00Z\n", want: 1},
		{name: "offset zone", in: "2026-10-01T23:00:00+02:00,2026-10-02T07:00:00+02:00\n", want: 1},
		{name: "trailing open", in: "2026-10-01T23:00:00Z,2026-10-02T07:00:00Z\n2026-10-02T23:00:00Z,\n", want: 2, wantOpen: true},
		{name: "single column", in: "2026-10-01T23:00:00Z\n", want: 1, wantOpen: true},
		{name: "comments and spaces", in: "# exported diary\n2026-10-01T23:00:00Z, 2026-10-02T07:00:00Z\n", want: 1},
		{name: "empty", in: "", want: 0},
		{name: "bad asleep", in: "yesterday,2026-10-02T07:00:00Z\n", wantErr: true},
		{name: "bad awake", in: "2026-10-01T23:00:00Z,morning\n", wantErr: true},
		{name: "too many fields", in: "2026-10-01T23:00:00Z,2026-10-02T07:00:00Z,x\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCSV(strings.NewReader(tt.in), SourceImport)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !isParseError(err) {
					t.Errorf("err = %v is not reported as a parse error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCSV: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("periods = %d, want %d", len(got), tt.want)
			}
			if tt.want == 0 {
				return
			}
			last := got[len(got)-1]
			if last.Open() != tt.wantOpen {
				t.Errorf("last open = %v, want %v", last.Open(), tt.wantOpen)
			}
			if got[0].AsleepAt.Location() != time.UTC {
				t.Errorf("asleep_at not normalised to UTC: %v", got[0].AsleepAt)
			}
			if got[0].Source != SourceImport {
				t.Errorf("source = %q", got[0].Source)
			}
		})
	}
}

func TestParseCSV_BadRecordSentinel(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("a,b,c\n"), SourceImport)
	if !errors.Is(err, errBadRecord) {
		t.Errorf("err = %v, want errBadRecord", err)
	}
}
