package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

const pollInterval = 200 * time.Millisecond

// Options configures a bot game.
type Options struct {
	BaseURL string
	Bots    int
	// Stall is how long the host waits for a phase to finish on its own
	// before forcing it forward.
	Stall time.Duration
}

// Outcome summarizes a finished bot game.
type Outcome struct {
	Code   string
	Phases []cabin.Phase
	Final  *cabin.FinalResult
}

// Orchestrator runs a full session with bot players. The first bot hosts.
type Orchestrator struct {
	opts     Options
	strategy Strategy
	bots     []*Client
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(opts Options, strategy Strategy) *Orchestrator {
	if opts.Bots < cabin.MinPlayers {
		opts.Bots = cabin.MinPlayers
	}
	if opts.Stall <= 0 {
		opts.Stall = 5 * time.Second
	}
	return &Orchestrator{opts: opts, strategy: strategy}
}

func (o *Orchestrator) host() *Client { return o.bots[0] }

// Run logs the bots in, plays one game through to the reveal and returns
// what happened.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	log.Info().Str("strategy", o.strategy.Name()).Int("bots", o.opts.Bots).Msg("Starting bot game")

	for i := 1; i <= o.opts.Bots; i++ {
		name := fmt.Sprintf("Bot%d", i)
		c := NewClient(name, o.opts.BaseURL)
		if err := c.Login(); err != nil {
			return nil, fmt.Errorf("login %s: %w", name, err)
		}
		o.bots = append(o.bots, c)
	}

	sess, err := o.host().CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	code := sess.Code
	log.Info().Str("sessionCode", code).Msg("Session created")

	var events <-chan WSEvent
	if err := o.host().ConnectWS(); err != nil {
		log.Warn().Err(err).Msg("WebSocket unavailable, polling only")
	} else {
		defer o.host().CloseWS()
		if err := o.host().Subscribe(code); err != nil {
			log.Warn().Err(err).Msg("Subscribe failed, polling only")
		} else {
			events = o.host().Events()
		}
	}

	for _, c := range o.bots {
		if _, err := c.JoinSession(code); err != nil {
			return nil, fmt.Errorf("join %s: %w", c.Name(), err)
		}
	}
	log.Info().Int("players", len(o.bots)).Msg("All bots joined")

	out := &Outcome{Code: code}
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sess, err := o.host().GetSession(code)
		if err != nil {
			return out, fmt.Errorf("get session: %w", err)
		}
		out.Phases = append(out.Phases, sess.Phase)
		if sess.Phase == cabin.PhaseReveal {
			out.Final = sess.Artifacts.FinalResult
			o.logOutcome(code, out.Final)
			return out, nil
		}
		log.Info().Str("phase", string(sess.Phase)).Msg("Playing phase")

		o.playPhase(sess)
		if sess.Phase == cabin.PhaseLobby {
			if err := o.host().Advance(code, false); err != nil {
				return out, fmt.Errorf("start game: %w", err)
			}
		}

		if err := o.waitForPhaseChange(ctx, code, sess.Phase, events); err != nil {
			return out, err
		}
	}
}

// playPhase lets every bot make its moves for the current phase.
func (o *Orchestrator) playPhase(sess *model.Session) {
	for _, c := range o.bots {
		me, err := c.GetPlayer(sess.Code)
		if err != nil {
			log.Warn().Err(err).Str("bot", c.Name()).Msg("Failed to read player record")
			continue
		}
		for _, m := range o.strategy.Moves(sess, me) {
			if err := execute(c, sess.Code, m); err != nil {
				logMoveError(c, m, err)
			}
		}
	}
}

func execute(c *Client, code string, m Move) error {
	switch m.Kind {
	case MoveSubmit:
		return c.Submit(code, m.Phase, m.Payload)
	case MoveVote:
		return c.Vote(code, m.Phase, m.Field, m.Target)
	case MoveReady:
		return c.Ready(code, m.Phase)
	case MoveRumor:
		return c.SendRumor(code, m.Card, m.Text, m.Recipient)
	case MoveMessage:
		return c.PostMessage(code, m.Text)
	}
	return fmt.Errorf("unknown move kind %q", m.Kind)
}

// logMoveError keeps conflicts quiet: a phase that moved on under the bot
// is expected when the last submission triggers an advance.
func logMoveError(c *Client, m Move, err error) {
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusConflict {
		log.Debug().Err(err).Str("bot", c.Name()).Str("move", string(m.Kind)).Msg("Move rejected as stale")
		return
	}
	log.Warn().Err(err).Str("bot", c.Name()).Str("move", string(m.Kind)).Msg("Move failed")
}

// waitForPhaseChange blocks until the session leaves phase. WebSocket events
// wake it early; the ticker covers a missing or dropped socket. After the
// stall timeout the host forces the phase forward.
func (o *Orchestrator) waitForPhaseChange(ctx context.Context, code string, phase cabin.Phase, events <-chan WSEvent) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	stall := time.NewTimer(o.opts.Stall)
	defer stall.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		case <-ticker.C:
		case <-stall.C:
			log.Info().Str("phase", string(phase)).Msg("Phase stalled, forcing advance")
			if err := o.host().Advance(code, true); err != nil {
				var se *StatusError
				if !errors.As(err, &se) || se.Status != http.StatusConflict {
					return fmt.Errorf("force advance: %w", err)
				}
			}
			stall.Reset(o.opts.Stall)
		}

		sess, err := o.host().GetSession(code)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if sess.Phase != phase {
			return nil
		}
	}
}

func (o *Orchestrator) logOutcome(code string, final *cabin.FinalResult) {
	if final == nil {
		log.Warn().Str("sessionCode", code).Msg("Game revealed without a final result")
		return
	}
	name := final.MurdererID
	for _, c := range o.bots {
		if c.UserID() == final.MurdererID {
			name = c.Name()
		}
	}
	log.Info().
		Str("sessionCode", code).
		Str("murderer", name).
		Str("weapon", final.ChosenWeapon).
		Bool("caught", final.Caught).
		Msg("Game revealed")
}
