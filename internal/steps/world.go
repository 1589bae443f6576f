package steps

import (
	"context"
	"time"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/artifacts"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/fixtures"
	"github.com/kuitang/nursery-suite/internal/nursery"
	"github.com/kuitang/nursery-suite/internal/pages"
	"github.com/kuitang/nursery-suite/internal/session"
)

type worldContextKey struct{}

// World is the state of one scenario. It is created by the Before hook and
// discarded after the scenario, so scenarios never observe each other.
type World struct {
	ScenarioID string
	Scenario   string
	Feature    string
	started    time.Time

	client   nursery.Doer
	api      *nursery.API
	sessions *session.Cache
	resolver *fixtures.Resolver

	// authRole is the role set by the last "authenticated to the API" step.
	authRole string

	// last is the most recent API response; each request overwrites it.
	last     *apiclient.Response
	lastRole string

	plantID       nursery.ID
	plantName     string
	stockBefore   int
	saleID        nursery.ID
	categoryID    nursery.ID
	categoryName  string
	parentID      nursery.ID
	requestedSize int

	// seedBase prefixes the names of the plants seeded in this scenario.
	seedBase   string
	seededSize int

	baseURL string
	ui      *pages.Session
	uiErr   error
	skipped bool

	uiPlant       pages.PlantOption
	uiSoldQty     int
	uiDeletedSale string

	saved []artifacts.Artifact
}

func withWorld(ctx context.Context, w *World) context.Context {
	return context.WithValue(ctx, worldContextKey{}, w)
}

// WorldFrom returns the scenario's World.
func WorldFrom(ctx context.Context) (*World, error) {
	w, ok := ctx.Value(worldContextKey{}).(*World)
	if !ok || w == nil {
		return nil, errs.New(errs.Setup, "no scenario state in context")
	}
	return w, nil
}

// record stores resp as the last response.
func (w *World) record(role string, resp *apiclient.Response) {
	w.last = resp
	w.lastRole = role
}

// token returns the token of the role the scenario authenticated as.
func (w *World) token() (string, error) {
	if w.authRole == "" {
		return "", errs.New(errs.Setup, "scenario is not authenticated to the API; add an authentication step")
	}
	return w.sessions.Require(w.authRole)
}

// tokenFor returns a cached token for role, logging in when the scenario has
// not done so yet.
func (w *World) tokenFor(ctx context.Context, role string) (string, error) {
	if tok, ok := w.sessions.Token(role); ok {
		return tok, nil
	}
	return w.sessions.Login(ctx, role)
}

// Last returns the last captured response or a setup error.
func (w *World) Last() (*apiclient.Response, error) {
	if w.last == nil {
		return nil, errs.New(errs.Setup, "no API response captured in this scenario")
	}
	return w.last, nil
}

// lastDecoded decodes the last response body.
func (w *World) lastDecoded() (*apiclient.Response, any, error) {
	resp, err := w.Last()
	if err != nil {
		return nil, nil, err
	}
	body, err := resp.Decoded()
	if err != nil {
		return resp, nil, resp.Unexpected("body is not JSON")
	}
	return resp, body, nil
}
