package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PoolRecord persists a staking pool. Accumulator is stored as a base-10
// string because it exceeds 64 bits.
type PoolRecord struct {
	ID             string `gorm:"primaryKey;size:64"`
	Authority      string `gorm:"size:64;index"`
	Nonce          uint64
	PrincipalUnit  string `gorm:"size:32;not null"`
	RewardUnit     string `gorm:"size:32;not null"`
	PrincipalVault string `gorm:"size:64;not null"`
	RewardVault    string `gorm:"size:64;not null"`
	RewardRate     uint64 `gorm:"not null"`
	TotalStaked    uint64 `gorm:"not null"`
	Accumulator    string `gorm:"size:80;not null"`
	LastSettledAt  int64  `gorm:"not null"`
	LockDuration   int64  `gorm:"not null"`
	Active         bool   `gorm:"index"`
	OpenedAt       int64  `gorm:"not null"`
	UpdatedAt      time.Time
}

// StakeRecord persists one participant's position in a pool. The record is
// reused when a closed position is reopened.
type StakeRecord struct {
	PoolID           string `gorm:"primaryKey;size:64"`
	Owner            string `gorm:"primaryKey;size:64"`
	StakeID          string `gorm:"size:36;index"`
	Amount           uint64 `gorm:"not null"`
	Checkpoint       string `gorm:"size:80;not null"`
	UnclaimedRewards uint64 `gorm:"not null"`
	StakedAt         int64
	UnlockAt         int64
	Active           bool `gorm:"index"`
	UpdatedAt        time.Time
}

// BalanceRecord holds a custody balance for one unit and holder.
type BalanceRecord struct {
	Unit      string `gorm:"primaryKey;size:32"`
	Holder    string `gorm:"primaryKey;size:64"`
	Amount    uint64 `gorm:"not null"`
	UpdatedAt time.Time
}

// VaultRecord marks a pool vault provisioned for a unit.
type VaultRecord struct {
	Unit      string `gorm:"primaryKey;size:32"`
	Address   string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

// TransferRecord is the append-only custody audit trail.
type TransferRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Unit        string    `gorm:"size:32;index"`
	Source      string    `gorm:"size:64;index"`
	Destination string    `gorm:"size:64;index"`
	Amount      uint64    `gorm:"not null"`
	CreatedAt   time.Time
}

// AutoMigrate performs all schema migrations for the ledger.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PoolRecord{},
		&StakeRecord{},
		&BalanceRecord{},
		&VaultRecord{},
		&TransferRecord{},
	)
}
