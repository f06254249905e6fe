package app

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/krich11/mls-chat/internal/domain"
	"github.com/krich11/mls-chat/internal/engine"
	groupsvc "github.com/krich11/mls-chat/internal/services/group"
	keypackagesvc "github.com/krich11/mls-chat/internal/services/keypackage"
	messagesvc "github.com/krich11/mls-chat/internal/services/message"
	"github.com/krich11/mls-chat/internal/store"
)

// Wire bundles all stores and services for the CLI.
type Wire struct {
	KeyPackages domain.KeyPackageService
	Groups      domain.GroupService
	Messages    domain.MessageService
	Settings    domain.SettingsStore
	Log         zerolog.Logger
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.LogLevel).
		With().Timestamp().Logger()

	// File-based stores
	userStore := store.NewUserFileStore(cfg.Home)
	kpStore := store.NewKeyPackageFileStore(cfg.Home)
	memberStore := store.NewMemberFileStore(cfg.Home)
	dirStore := store.NewDirectoryFileStore(cfg.Home)
	mailbox := store.NewMailboxFileStore(cfg.Home)
	settings := store.NewSettingsFileStore(cfg.Home)

	eng := engine.New(log)
	locker := groupsvc.NewLocker()

	// High-level services share the per-group lock registry so every
	// state-mutating operation on a group is serialised.
	kpSvc := keypackagesvc.New(userStore, kpStore, log)
	grpSvc := groupsvc.New(kpSvc, memberStore, dirStore, mailbox, eng, locker, log)
	msgSvc := messagesvc.New(kpSvc, memberStore, dirStore, mailbox, eng, locker, log)

	return &Wire{
		KeyPackages: kpSvc,
		Groups:      grpSvc,
		Messages:    msgSvc,
		Settings:    settings,
		Log:         log,
	}, nil
}
