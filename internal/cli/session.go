package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptfinder/internal/config"
	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
	"github.com/randalmurphal/promptfinder/internal/store"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// sessionFlags are the viewer inputs shared by render and fill.
type sessionFlags struct {
	user     string
	preset   string
	loggedIn bool
	profile  []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "user id or platform account id")
	cmd.Flags().StringVar(&f.preset, "preset", "", "load a saved preset (requires --user)")
	cmd.Flags().BoolVar(&f.loggedIn, "logged-in", false, "render as a logged-in viewer (enables saved profile values)")
	cmd.Flags().StringArrayVar(&f.profile, "profile", nil, "profile value key=value (repeatable)")
}

// session is a prepared viewer: their store handle, id, profile layer and
// preset values.
type session struct {
	store   store.Store
	uid     store.UserID
	profile variable.ProfileVars
	preset  map[string]string
}

func (s *session) close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// prepare opens the store when the flags need it and builds the viewer's
// profile layer and preset values.
func (f *sessionFlags) prepare(ctx context.Context, cfg *config.Config, wf *workflow.Workflow) (*session, error) {
	overrides, err := parseAssignments(f.profile)
	if err != nil {
		return nil, err
	}
	if f.preset != "" && f.user == "" {
		return nil, pferrors.ErrPresetInvalid("--preset requires --user")
	}

	s := &session{}
	if f.user != "" {
		s.store, err = openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.uid, err = resolveUser(ctx, s.store, f.user)
		if err != nil {
			s.close()
			return nil, err
		}
	}

	if f.preset != "" {
		p, err := s.store.GetPreset(ctx, s.uid, wf.ID, f.preset)
		if err != nil {
			s.close()
			return nil, err
		}
		s.preset = p.Values
	}

	s.profile, err = profileVars(ctx, cfg, s.store, wf, s.uid, f.loggedIn, overrides)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}
