package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"stakeledger/services/stakingd/server"
)

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// poolManifest lists the pools an authority wants to open in one run.
type poolManifest struct {
	Pools []poolEntry `toml:"pool"`
}

type poolEntry struct {
	Name          string   `toml:"name"`
	PrincipalUnit string   `toml:"principal_unit"`
	RewardUnit    string   `toml:"reward_unit"`
	RewardRate    uint64   `toml:"reward_rate"`
	AprPercent    uint64   `toml:"apr_percent"`
	TargetStake   uint64   `toml:"target_stake"`
	LockDuration  duration `toml:"lock_duration"`
	// Fund is minted into the reward vault after creation. Requires an admin
	// token.
	Fund uint64 `toml:"fund"`
}

func loadManifest(path string) (poolManifest, error) {
	var m poolManifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return m, fmt.Errorf("manifest %s: unknown key %s", path, undecoded[0])
	}
	if len(m.Pools) == 0 {
		return m, fmt.Errorf("manifest %s declares no pools", path)
	}
	for i, p := range m.Pools {
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if strings.TrimSpace(p.PrincipalUnit) == "" || strings.TrimSpace(p.RewardUnit) == "" {
			return m, fmt.Errorf("pool %s: principal_unit and reward_unit are required", label)
		}
		if p.RewardRate == 0 && p.AprPercent == 0 {
			return m, fmt.Errorf("pool %s: reward_rate or apr_percent is required", label)
		}
		if p.AprPercent > 0 && p.RewardRate == 0 && p.TargetStake == 0 {
			return m, fmt.Errorf("pool %s: apr_percent needs target_stake", label)
		}
		if p.LockDuration.Duration%time.Second != 0 {
			return m, fmt.Errorf("pool %s: lock_duration must be whole seconds", label)
		}
	}
	return m, nil
}

func (p poolEntry) request() server.CreatePoolRequest {
	return server.CreatePoolRequest{
		PrincipalUnit: p.PrincipalUnit,
		RewardUnit:    p.RewardUnit,
		RewardRate:    server.Amount(p.RewardRate),
		AprPercent:    p.AprPercent,
		TargetStake:   server.Amount(p.TargetStake),
		LockDuration:  int64(p.LockDuration.Seconds()),
	}
}
