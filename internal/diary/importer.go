package diary

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/HerbHall/sleepcast/pkg/sleep"
)

var errBadRecord = errors.New("malformed diary record")

// ParseCSV reads periods from CSV with the columns asleep_at, awake_at in
// RFC 3339. A header row is optional. awake_at may be blank on the last
// period only; ordering and consistency are checked on import.
func ParseCSV(r io.Reader, source string) ([]sleep.Period, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var periods []sleep.Period
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "asleep_at") {
			continue
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if len(rec) > 2 {
			return nil, fmt.Errorf("%w: record %d: expected asleep_at,awake_at, got %d fields", errBadRecord, line, len(rec))
		}

		asleep, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("record %d: asleep_at: %w", line, err)
		}
		p := sleep.Period{AsleepAt: asleep.UTC(), Source: source}
		if len(rec) == 2 && strings.TrimSpace(rec[1]) != "" {
			awake, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[1]))
			if err != nil {
				return nil, fmt.Errorf("record %d: awake_at: %w", line, err)
			}
			awake = awake.UTC()
			p.AwakeAt = &awake
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// Import parses CSV from r and stores the periods it contains.
func (s *Service) Import(ctx context.Context, r io.Reader, source string) (int, error) {
	periods, err := ParseCSV(r, source)
	if err != nil {
		return 0, err
	}
	return s.ImportPeriods(ctx, periods)
}
