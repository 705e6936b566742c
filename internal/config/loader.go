package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/stellar/go/strkey"

	"github.com/chainwatch-io/chainwatch/internal/filter"
	"github.com/chainwatch-io/chainwatch/internal/models"
)

// Layout of a configuration root:
//
//	networks/*.json   one network object per file
//	monitors/*.json   one monitor object per file
//	triggers/*.json   a {name: trigger} object per file, merged across files
//
// Load reads all three sets, validates each object and every cross
// reference, and returns the assembled snapshot.
func Load(root string) (*Snapshot, error) {
	networks, err := loadNetworks(filepath.Join(root, "networks"))
	if err != nil {
		return nil, err
	}
	monitors, err := loadMonitors(filepath.Join(root, "monitors"))
	if err != nil {
		return nil, err
	}
	triggers, err := loadTriggers(filepath.Join(root, "triggers"))
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Networks: networks, Monitors: monitors, Triggers: triggers}
	if err := validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrLoad, dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

func loadNetworks(dir string) (map[string]models.Network, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Network, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrLoad, path, err)
		}
		var n models.Network
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrLoad, path, err)
		}
		if _, exists := out[n.Slug]; exists {
			return nil, fmt.Errorf("%w: duplicate network slug %q in %s", ErrValidation, n.Slug, path)
		}
		out[n.Slug] = n
	}
	return out, nil
}

func loadMonitors(dir string) (map[string]models.Monitor, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Monitor, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrLoad, path, err)
		}
		var m models.Monitor
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrLoad, path, err)
		}
		if _, exists := out[m.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate monitor name %q in %s", ErrValidation, m.Name, path)
		}
		out[m.Name] = m
	}
	return out, nil
}

func loadTriggers(dir string) (map[string]models.Trigger, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Trigger)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrLoad, path, err)
		}
		var set map[string]models.Trigger
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrLoad, path, err)
		}
		for name, trig := range set {
			if _, exists := out[name]; exists {
				return nil, fmt.Errorf("%w: duplicate trigger name %q in %s", ErrValidation, name, path)
			}
			if trig.Name == "" {
				trig.Name = name
			}
			out[name] = trig
		}
	}
	return out, nil
}

// cronParser accepts the six-field (seconds-first) schedule format.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateCron checks a six-field cron schedule.
func ValidateCron(schedule string) error {
	_, err := cronParser.Parse(schedule)
	return err
}

// validate applies per-object validation plus the cross-reference rules: a
// monitor may only name networks and triggers that exist.
func validate(s *Snapshot) error {
	for slug, n := range s.Networks {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := ValidateCron(n.CronSchedule); err != nil {
			return fmt.Errorf("%w: network %q: invalid cron_schedule %q: %v", ErrValidation, slug, n.CronSchedule, err)
		}
	}

	for name, trig := range s.Triggers {
		if err := trig.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if trig.Name != name {
			return fmt.Errorf("%w: trigger %q declared under key %q", ErrValidation, trig.Name, name)
		}
	}

	for name, m := range s.Monitors {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		for _, slug := range m.Networks {
			network, ok := s.Networks[slug]
			if !ok {
				return fmt.Errorf("%w: monitor %q references unknown network %q", ErrValidation, name, slug)
			}
			for _, a := range m.Addresses {
				if err := validateAddress(network.Type, a.Address); err != nil {
					return fmt.Errorf("%w: monitor %q: %v", ErrValidation, name, err)
				}
			}
		}
		for _, trig := range m.Triggers {
			if _, ok := s.Triggers[trig]; !ok {
				return fmt.Errorf("%w: monitor %q references unknown trigger %q", ErrValidation, name, trig)
			}
		}
		if err := validateExpressions(&m); err != nil {
			return err
		}
	}
	return nil
}

// validateAddress checks that an address parses for the chain family it is
// monitored on. Stellar accepts contract (C...) and account (G...) strkeys.
func validateAddress(chainType models.NetworkType, address string) error {
	switch chainType {
	case models.NetworkEVM:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%q is not an EVM address", address)
		}
	case models.NetworkStellar:
		if _, err := strkey.Decode(strkey.VersionByteContract, address); err == nil {
			return nil
		}
		if _, err := strkey.Decode(strkey.VersionByteAccountID, address); err == nil {
			return nil
		}
		return fmt.Errorf("%q is not a Stellar contract or account address", address)
	}
	return nil
}

func validateExpressions(m *models.Monitor) error {
	for _, c := range m.MatchConditions.Transactions {
		if err := filter.ValidateExpression(c.Expression); err != nil {
			return fmt.Errorf("%w: monitor %q transaction condition: %v", ErrValidation, m.Name, err)
		}
	}
	for _, c := range m.MatchConditions.Events {
		if err := filter.ValidateExpression(c.Expression); err != nil {
			return fmt.Errorf("%w: monitor %q event condition %q: %v", ErrValidation, m.Name, c.Signature, err)
		}
	}
	for _, c := range m.MatchConditions.Functions {
		if err := filter.ValidateExpression(c.Expression); err != nil {
			return fmt.Errorf("%w: monitor %q function condition %q: %v", ErrValidation, m.Name, c.Signature, err)
		}
	}
	return nil
}
