// Package inventory materialises device batches for the backup engine.
//
// Devices are loaded with their site and credential relations in a single
// query and converted to plain snapshots before any worker starts, so the
// SSH worker pool never touches the database.
package inventory

import (
	"context"
	"fmt"

	"github.com/agncf/netfortress/internal/models"
	"github.com/agncf/netfortress/internal/repository"
	"github.com/agncf/netfortress/internal/secrets"
)

const defaultSSHPort = 22

// Snapshot is a plain, immutable record of everything a worker needs to back
// up one device. Safe to hand across goroutines.
type Snapshot struct {
	DeviceID      int64
	Hostname      string
	IP            string
	Platform      models.Platform
	DriverID      string // SSH driver identifier, e.g. "cisco_ios"
	Username      string
	Password      string
	Port          int
	SiteCode      string
	GiteaRepoName string
	IsAPIDevice   bool

	// HasCredentials is false on a tier-3 miss: no credential set and no
	// global fallback. The engine records such devices as failed without
	// attempting a connection.
	HasCredentials bool

	// CredentialError is set when the device's stored password failed to
	// decrypt. It never falls through to the global tier.
	CredentialError string
}

// Resolver resolves device credentials with the three-tier priority:
// device-bound credential set, then the global pair, then none.
type Resolver struct {
	cipher     *secrets.Cipher
	globalUser string
	globalPass string
}

// NewResolver creates a credential resolver.
func NewResolver(cipher *secrets.Cipher, globalUser, globalPass string) *Resolver {
	return &Resolver{cipher: cipher, globalUser: globalUser, globalPass: globalPass}
}

// Resolve applies the credential tiers to a loaded inventory row.
func (r *Resolver) resolve(row repository.InventoryRow, snap *Snapshot) {
	if row.CredUsername != nil && row.CredEncryptedPass != nil {
		password, err := r.cipher.Decrypt(*row.CredEncryptedPass)
		if err != nil {
			snap.CredentialError = fmt.Sprintf("credential decryption failed: %v", err)
			return
		}
		snap.Username = *row.CredUsername
		snap.Password = password
		snap.HasCredentials = true
		return
	}

	if r.globalUser != "" && r.globalPass != "" {
		snap.Username = r.globalUser
		snap.Password = r.globalPass
		snap.HasCredentials = true
	}
}

// Snapshotter loads device batches into snapshots.
type Snapshotter struct {
	devices  repository.DeviceRepository
	resolver *Resolver
}

// NewSnapshotter creates a snapshotter.
func NewSnapshotter(devices repository.DeviceRepository, resolver *Resolver) *Snapshotter {
	return &Snapshotter{devices: devices, resolver: resolver}
}

// Load materialises snapshots for the given device IDs (all enabled devices
// when empty), resolving credentials up front.
func (s *Snapshotter) Load(ctx context.Context, deviceIDs []int64) ([]Snapshot, error) {
	rows, err := s.devices.ListInventory(ctx, deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	return s.Build(rows), nil
}

// Build converts joined rows to snapshots. Exposed separately from Load so
// credential resolution is testable without a database.
func (s *Snapshotter) Build(rows []repository.InventoryRow) []Snapshot {
	snaps := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		snap := Snapshot{
			DeviceID:      row.DeviceID,
			Hostname:      row.Hostname,
			IP:            row.IP,
			Platform:      row.Platform,
			DriverID:      row.Platform.DriverID(),
			Port:          defaultSSHPort,
			SiteCode:      row.SiteCode,
			GiteaRepoName: row.GiteaRepoName,
			IsAPIDevice:   row.Platform.IsAPIDevice(),
		}
		s.resolver.resolve(row, &snap)
		snaps = append(snaps, snap)
	}
	return snaps
}
