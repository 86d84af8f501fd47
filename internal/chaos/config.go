package chaos

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds chaos configuration
type Config struct {
	Enabled bool   `mapstructure:"chaos_enabled"`
	Profile string `mapstructure:"chaos_profile"`
	// Ops limits injection to the named store operations (comma-separated);
	// empty applies to all of them.
	Ops        string `mapstructure:"chaos_ops"`
	DropPct    int    `mapstructure:"chaos_drop_pct"`
	DelayMsMin int    `mapstructure:"chaos_delay_ms_min"`
	DelayMsMax int    `mapstructure:"chaos_delay_ms_max"`
	Seed       int64  `mapstructure:"chaos_seed"`
	WindowMs   int    `mapstructure:"chaos_window_ms"`
}

// ParseProfile parses a profile string like "drop-pct=30,delay=50-250"
func ParseProfile(profile string) (dropPct int, delayMin int, delayMax int, err error) {
	if profile == "" {
		return 0, 0, 0, nil
	}

	for _, part := range strings.Split(profile, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "drop-pct="):
			dropPct, err = strconv.Atoi(strings.TrimPrefix(part, "drop-pct="))
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid drop-pct: %w", err)
			}
			if dropPct < 0 || dropPct > 100 {
				return 0, 0, 0, fmt.Errorf("drop-pct %d out of range", dropPct)
			}
		case strings.HasPrefix(part, "delay="):
			bounds := strings.Split(strings.TrimPrefix(part, "delay="), "-")
			if len(bounds) != 2 {
				return 0, 0, 0, fmt.Errorf("invalid delay %q, want min-max", part)
			}
			delayMin, err = strconv.Atoi(bounds[0])
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid delay min: %w", err)
			}
			delayMax, err = strconv.Atoi(bounds[1])
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid delay max: %w", err)
			}
			if delayMax < delayMin {
				return 0, 0, 0, fmt.Errorf("delay max %d below min %d", delayMax, delayMin)
			}
		case part == "":
		default:
			return 0, 0, 0, fmt.Errorf("unknown profile setting %q", part)
		}
	}

	return dropPct, delayMin, delayMax, nil
}

func (c Config) targets(op string) bool {
	if strings.TrimSpace(c.Ops) == "" {
		return true
	}
	for _, o := range strings.Split(c.Ops, ",") {
		if strings.TrimSpace(o) == op {
			return true
		}
	}
	return false
}
