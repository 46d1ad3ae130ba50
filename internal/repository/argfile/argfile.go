package argfile

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const positional = 20

// ArglistRegex matches one arglist line: the args file and its control flags.
var ArglistRegex = regexp.MustCompile(`^[^#]?@?(args_.*\.txt)(( ?-[a-z])*)?`)

// Store reads args files from a directory and enables them through an
// arglist file. Files are read on every call so edits apply on the next bar.
type Store struct {
	dir     string
	arglist string
}

func NewStore(dir, arglist string) *Store {
	return &Store{
		dir:     dir,
		arglist: arglist,
	}
}

func (s *Store) List(_ context.Context) ([]models.SettingsEntry, error) {
	f, err := os.Open(s.arglist)
	if err != nil {
		return nil, errors.Wrap(err, "arglist")
	}
	defer f.Close()

	return ParseArglist(f)
}

func (s *Store) Load(_ context.Context, name string) (*models.Settings, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "args file %s", name)
	}
	defer f.Close()

	return Parse(name, f)
}

func (s *Store) Controls(ctx context.Context, name string) (models.Controls, bool, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return models.Controls{}, false, err
	}

	for _, e := range entries {
		if e.Name == name {
			return e.Controls, true, nil
		}
	}

	return models.Controls{}, false, nil
}

// ParseArglistLine returns the args file named on line and its flags.
func ParseArglistLine(line string) (string, []string, bool) {
	m := ArglistRegex.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", nil, false
	}

	return m[1], strings.Fields(m[2]), true
}

// ParseArglist keeps the first line of every args file.
func ParseArglist(r io.Reader) ([]models.SettingsEntry, error) {
	var (
		out  []models.SettingsEntry
		seen = map[string]bool{}
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name, flags, ok := ParseArglistLine(sc.Text())
		if !ok || seen[name] {
			continue
		}
		seen[name] = true

		out = append(out, models.SettingsEntry{
			Name:     name,
			Controls: models.ControlsFromFlags(flags),
		})
	}

	return out, errors.Wrap(sc.Err(), "arglist")
}

// Parse reads an args file: one positional value per line followed by
// flags, one per line.
func Parse(name string, r io.Reader) (*models.Settings, error) {
	var lines []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "args file %s", name)
	}

	if len(lines) < positional {
		return nil, errors.Wrapf(models.ErrInvalidSettings, "args file %s: %d values, want %d", name, len(lines), positional)
	}

	p := &parser{name: name, values: lines[:positional]}
	s := &models.Settings{
		Name:                         name,
		Exchange:                     strings.ToUpper(p.str(0)),
		Interval:                     p.str(1),
		Symbol:                       p.str(2),
		FlushPercent:                 p.dec(3),
		SqueezePercent:               p.dec(4),
		NumberOfFlushBars:            p.integer(5),
		ExitLookbackBars:             p.integer(6),
		StopLossPercentageLong:       p.dec(7),
		StopLossPercentageShort:      p.dec(8),
		SoftSLPercentage:             p.dec(9),
		SoftSLN:                      p.integer(10),
		TakeProfitPercentage:         p.dec(11),
		Quantity:                     p.dec(12),
		FixedBalance:                 p.dec(13),
		BalancePercent:               p.dec(14),
		MinBalance:                   p.dec(15),
		MaxDrawdownPercentage:        p.dec(16),
		MaxSingleTradeLossPercentage: p.dec(17),
		MaxNumOfPositions:            p.integer(18),
		ShortsPositionMultiplier:     p.dec(19),
	}
	if p.err != nil {
		return nil, p.err
	}

	for _, flag := range lines[positional:] {
		switch flag {
		case "-b":
			s.Blocking = true
		case "-t":
			s.StopLossTermination = true
		case "-s":
			s.Shorts = true
		case "-r":
			s.RecalcOnFill = true
		case "-p":
			s.PostOnly = true
		case "-c":
			s.ClosePartialFills = true
		case "-a":
			s.AvoidMarketEntries = true
		case "-x":
			s.ClosePositionOnly = true
		case "-v":
			s.VolumeBasedPosSize = true
		case "-n":
			s.IgnoreAbnormalVolume = true
		case "-R":
			s.ReverseMode = true
		default:
			return nil, errors.Wrapf(models.ErrInvalidSettings, "args file %s: unknown flag %q", name, flag)
		}
	}

	return s, nil
}

// parser keeps the first conversion error.
type parser struct {
	name   string
	values []string
	err    error
}

func (p *parser) str(i int) string {
	return p.values[i]
}

func (p *parser) dec(i int) decimal.Decimal {
	v, err := decimal.NewFromString(p.values[i])
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(models.ErrInvalidSettings, "args file %s line %d: %q is not a number", p.name, i+1, p.values[i])
	}
	return v
}

func (p *parser) integer(i int) int {
	v, err := strconv.Atoi(p.values[i])
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(models.ErrInvalidSettings, "args file %s line %d: %q is not an integer", p.name, i+1, p.values[i])
	}
	return v
}
