package challenge

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/hurdle/internal/browser/humanoid"
	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/config"
	"go.uber.org/zap"
)

// Session is one browser context working toward one target. It is owned by a
// single goroutine for its whole life.
type Session struct {
	ID     string
	Proxy  string
	Target string

	profile stealth.Profile
	page    Page
	motor   *humanoid.Motor
}

type sessionOptions struct {
	id       string
	proxy    string
	target   string
	humanoid config.HumanoidConfig
	sleeper  humanoid.Sleeper
	seed     int64
	logger   *zap.Logger
}

// SessionOption customizes NewSession.
type SessionOption func(*sessionOptions)

// WithSessionID overrides the generated id.
func WithSessionID(id string) SessionOption { return func(o *sessionOptions) { o.id = id } }

// WithProxy records the proxy endpoint the session's browser uses.
func WithProxy(proxy string) SessionOption { return func(o *sessionOptions) { o.proxy = proxy } }

// WithTarget records the navigation target.
func WithTarget(target string) SessionOption { return func(o *sessionOptions) { o.target = target } }

// WithHumanoidConfig sets the motion timings.
func WithHumanoidConfig(cfg config.HumanoidConfig) SessionOption {
	return func(o *sessionOptions) { o.humanoid = cfg }
}

// WithSleeper replaces the wall clock used for gesture timing.
func WithSleeper(s humanoid.Sleeper) SessionOption { return func(o *sessionOptions) { o.sleeper = s } }

// WithMotionSeed makes gesture sampling deterministic.
func WithMotionSeed(seed int64) SessionOption { return func(o *sessionOptions) { o.seed = seed } }

// WithSessionLogger sets the logger for the session's motor.
func WithSessionLogger(l *zap.Logger) SessionOption { return func(o *sessionOptions) { o.logger = l } }

// NewSession binds a page and a profile. The profile is copied so later
// changes by the caller cannot reach the session.
func NewSession(page Page, profile stealth.Profile, opts ...SessionOption) *Session {
	o := sessionOptions{
		id:       uuid.NewString(),
		humanoid: config.DefaultHumanoidConfig(),
		sleeper:  humanoid.RealSleeper,
		seed:     time.Now().UnixNano(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	motor := humanoid.New(o.humanoid, page, o.sleeper, rand.New(rand.NewSource(o.seed)), o.logger)
	return &Session{
		ID:      o.id,
		Proxy:   o.proxy,
		Target:  o.target,
		profile: profile.Clone(),
		page:    page,
		motor:   motor,
	}
}

// Profile returns a copy of the session's fingerprint.
func (s *Session) Profile() stealth.Profile { return s.profile.Clone() }

// Page returns the driver bound to the session.
func (s *Session) Page() Page { return s.page }

// Motor returns the session's gesture synthesizer.
func (s *Session) Motor() *humanoid.Motor { return s.motor }
