package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/mmr-tortoise/portjar/internal/config"
	"github.com/mmr-tortoise/portjar/internal/jar"
	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/model"
	"github.com/mmr-tortoise/portjar/internal/port"
	"github.com/mmr-tortoise/portjar/internal/store"
)

// lockWait bounds how long a command waits for another portjar process to
// release the jar.
const lockWait = 10 * time.Second

// session is one command's view of the jar: the loaded config, a locked
// store and the parsed jar.
type session struct {
	cfg   *config.Config
	log   logger.Logger
	store store.Store
	jar   *jar.Jar
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load config", err)
	}
	if jarPath != "" {
		cfg.Store = config.StoreFile
		cfg.JarFile = config.ExpandPath(jarPath)
	}
	if lenient {
		cfg.ParseMode = string(jar.ParseLenient)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the command logger. Logs go to stderr so stdout stays
// clean for command output.
func newLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.LogLevel, cfg.PrettyLog)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to create logger", err)
	}
	return log, nil
}

// jarOptions turns config into jar options.
func jarOptions(cfg *config.Config, log logger.Logger) []jar.Option {
	return []jar.Option{
		jar.WithRange(cfg.PortMin, cfg.PortMax),
		jar.WithMaxAttempts(cfg.MaxAttempts),
		jar.WithProber(port.NewScanner(cfg.BindHost)),
		jar.WithLogger(log),
	}
}

// openSession loads config, locks the store and parses the jar. Commands
// that change the jar pass exclusive=true and call save before close.
func openSession(ctx context.Context, exclusive bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	st, err := store.Open(lockCtx, cfg, exclusive, log)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitStoreError, "failed to open jar store", err)
	}
	VerboseLog("Opened %s store", cfg.Store)

	text, err := st.Load(ctx)
	if err != nil {
		_ = st.Close()
		return nil, model.WrapCLIError(model.ExitStoreError, "failed to load jar", err)
	}

	mode, err := jar.ParseParseMode(cfg.ParseMode)
	if err != nil {
		_ = st.Close()
		return nil, model.WrapCLIError(model.ExitGeneralError, "invalid parse mode", err)
	}
	j, err := jar.Parse(text, mode, jarOptions(cfg, log)...)
	if err != nil {
		_ = st.Close()
		return nil, model.WrapCLIError(model.ExitCodeFor(err), "failed to parse jar (use --lenient to skip invalid lines)", err)
	}
	VerboseLog("Loaded %d reservations", j.Len())

	return &session{cfg: cfg, log: log, store: st, jar: j}, nil
}

func (s *session) save(ctx context.Context) error {
	if err := s.store.Save(ctx, s.jar.String()); err != nil {
		return model.WrapCLIError(model.ExitStoreError, "failed to save jar", err)
	}
	VerboseLog("Saved %d reservations", s.jar.Len())
	return nil
}

func (s *session) close() {
	_ = s.store.Close()
	_ = s.log.Sync()
}

// withSession runs fn inside a session and saves afterwards when the
// session is exclusive. The jar is saved even when fn fails, since a
// failed batch still commits the lines before the failure.
func withSession(ctx context.Context, exclusive bool, fn func(*session) error) error {
	s, err := openSession(ctx, exclusive)
	if err != nil {
		return err
	}
	defer s.close()

	fnErr := fn(s)
	if exclusive {
		if err := s.save(ctx); err != nil {
			if fnErr != nil {
				return fmt.Errorf("%w (and %v)", fnErr, err)
			}
			return err
		}
	}
	return fnErr
}
