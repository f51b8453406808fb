package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Unlimited marks a plan limit without an upper bound.
const Unlimited = -1

type Policy struct {
	Invitation InvitationPolicy `mapstructure:"invitation"`
	Seats      SeatPolicy       `mapstructure:"seats"`
	Scheduler  SchedulerPolicy  `mapstructure:"scheduler"`
	Plans      []Plan           `mapstructure:"plans"`
}

type InvitationPolicy struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SeatPolicy struct {
	// BillableRoles lists the member roles counted as paid seats. Empty means every role.
	BillableRoles  []string      `mapstructure:"billableRoles"`
	GatewayTimeout time.Duration `mapstructure:"gatewayTimeout"`
}

type SchedulerPolicy struct {
	ExpireInvitations string        `mapstructure:"expireInvitations"`
	RepairSeats       string        `mapstructure:"repairSeats"`
	RepairBatchSize   int           `mapstructure:"repairBatchSize"`
	LockTTL           time.Duration `mapstructure:"lockTTL"`
}

type Plan struct {
	Name      string `mapstructure:"name"`
	Members   int    `mapstructure:"members"`
	Projects  int    `mapstructure:"projects"`
	StorageGB int    `mapstructure:"storageGB"`
}

func DefaultPolicy() Policy {
	return Policy{
		Invitation: InvitationPolicy{TTL: 7 * 24 * time.Hour},
		Seats: SeatPolicy{
			GatewayTimeout: 10 * time.Second,
		},
		Scheduler: SchedulerPolicy{
			ExpireInvitations: "@every 5m",
			RepairSeats:       "@every 15m",
			RepairBatchSize:   100,
			LockTTL:           2 * time.Minute,
		},
		Plans: []Plan{
			{Name: "starter", Members: 5, Projects: 10, StorageGB: 5},
			{Name: "team", Members: Unlimited, Projects: 100, StorageGB: 50},
			{Name: "business", Members: Unlimited, Projects: 500, StorageGB: 200},
		},
	}
}

// FindPlan looks a plan up by name, case-insensitively.
func (p Policy) FindPlan(name string) (Plan, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, plan := range p.Plans {
		if strings.ToLower(plan.Name) == name {
			return plan, true
		}
	}
	return Plan{}, false
}

// IsBillableRole reports whether members holding role occupy a paid seat.
func (p Policy) IsBillableRole(role string) bool {
	if len(p.Seats.BillableRoles) == 0 {
		return true
	}
	role = strings.ToLower(strings.TrimSpace(role))
	for _, billable := range p.Seats.BillableRoles {
		if strings.ToLower(strings.TrimSpace(billable)) == role {
			return true
		}
	}
	return false
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("config.policy")
	v := viper.New()

	v.SetConfigName("seatkeeper")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/seatkeeper/config")
	v.AddConfigPath("/etc/seatkeeper")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SEATKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("invitation.ttl", defaults.Invitation.TTL)
	v.SetDefault("seats.billableRoles", defaults.Seats.BillableRoles)
	v.SetDefault("seats.gatewayTimeout", defaults.Seats.GatewayTimeout)
	v.SetDefault("scheduler.expireInvitations", defaults.Scheduler.ExpireInvitations)
	v.SetDefault("scheduler.repairSeats", defaults.Scheduler.RepairSeats)
	v.SetDefault("scheduler.repairBatchSize", defaults.Scheduler.RepairBatchSize)
	v.SetDefault("scheduler.lockTTL", defaults.Scheduler.LockTTL)
	v.SetDefault("plans", defaults.Plans)

	configFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		configFound = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !configFound {
		log.Info("policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("invalid policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	var policy Policy
	if err := v.Unmarshal(&policy); err != nil {
		return Policy{}, err
	}
	if err := validatePolicy(policy); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func validatePolicy(p Policy) error {
	if p.Invitation.TTL <= 0 {
		return errors.New("invitation.ttl must be positive")
	}
	if p.Seats.GatewayTimeout <= 0 {
		return errors.New("seats.gatewayTimeout must be positive")
	}
	if len(p.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	for _, plan := range p.Plans {
		if strings.TrimSpace(plan.Name) == "" {
			return errors.New("plans[].name cannot be empty")
		}
	}
	for _, role := range p.Seats.BillableRoles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "owner", "admin", "member":
		default:
			return fmt.Errorf("seats.billableRoles: unknown role %q", role)
		}
	}
	return nil
}
