package steps

import (
	"context"
	"net/http"
	"strings"

	"github.com/cucumber/godog"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/claims"
	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/obs"
	"github.com/kuitang/nursery-suite/internal/schema"
)

func registerAPISteps(sc *godog.ScenarioContext) {
	// Authentication.
	sc.Step(`^I am authenticated to the API as "([^"]*)"$`, iAmAuthenticatedAs)
	sc.Step(`^I log in as "([^"]*)"$`, iLogInAs)
	sc.Step(`^I log in with username "([^"]*)" and password "([^"]*)"$`, iLogInWith)
	sc.Step(`^the response should contain a valid JWT token$`, responseContainsJWT)
	sc.Step(`^the token should carry the "([^"]*)" authority$`, tokenCarriesAuthority)

	// Generic requests and response checks.
	sc.Step(`^I send a (GET|DELETE) request to "([^"]*)"$`, iSendRequest)
	sc.Step(`^I send a (GET|DELETE) request to "([^"]*)" without authentication$`, iSendAnonymousRequest)
	sc.Step(`^I request the dashboard$`, iRequestDashboard)
	sc.Step(`^the response status code should be (\d+)$`, statusShouldBe)
	sc.Step(`^the response status code should be (\d+) or (\d+)$`, statusShouldBeEither)
	sc.Step(`^the error response should match the ErrorResponse schema$`, errorResponseMatchesSchema)
	sc.Step(`^the error message should contain "([^"]*)"$`, errorMessageContains)
	sc.Step(`^the response should contain an authorization error message$`, authorizationError)
	sc.Step(`^the response body should contain fields "([^"]*)"$`, bodyContainsFields)

	registerSalesSteps(sc)
	registerCatalogSteps(sc)
}

// check turns a schema failure into an assertion that quotes resp.
func check(resp *apiclient.Response, err error) error {
	if err == nil {
		return nil
	}
	return resp.Unexpected("%s", errs.MessageOf(err))
}

func splitFields(list string) []string {
	var out []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func iAmAuthenticatedAs(ctx context.Context, role string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if _, err := w.sessions.Login(ctx, role); err != nil {
		return err
	}
	w.authRole = role
	obs.From(ctx).Info("scenario_authenticated", "pkg", "steps", "role", strings.ToUpper(role))
	return nil
}

func iLogInAs(ctx context.Context, role string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	cred, err := credentials.Resolve(role)
	if err != nil {
		return err
	}
	res, err := w.sessions.LoginWith(ctx, cred)
	if err != nil {
		return err
	}
	w.record(role, res.Response)
	w.authRole = role
	return nil
}

func iLogInWith(ctx context.Context, username, password string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	w.record("", resp)
	return nil
}

func lastToken(w *World) (*apiclient.Response, string, error) {
	resp, err := w.Last()
	if err != nil {
		return nil, "", err
	}
	obj, err := resp.Object()
	if err != nil {
		return resp, "", resp.Unexpected("login body is not a JSON object")
	}
	tok, _ := obj["token"].(string)
	if tok == "" {
		return resp, "", resp.Unexpected("login body has no token")
	}
	return resp, tok, nil
}

func responseContainsJWT(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, tok, err := lastToken(w)
	if err != nil {
		return err
	}
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return err
	}
	return check(resp, schema.JWTShaped(tok))
}

func tokenCarriesAuthority(ctx context.Context, authority string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, tok, err := lastToken(w)
	if err != nil {
		return err
	}
	role, err := claims.RoleOf(tok)
	if err != nil {
		return check(resp, err)
	}
	if !claims.MatchesAuthority(role, authority) {
		return resp.Unexpected("token role %q does not match authority %q", role, authority)
	}
	return nil
}

func sendRequest(ctx context.Context, w *World, method, path, token string) error {
	resp, err := w.client.Do(ctx, apiclient.Request{Method: method, Path: path, Token: token})
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

func iSendRequest(ctx context.Context, method, path string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	return sendRequest(ctx, w, method, path, token)
}

func iSendAnonymousRequest(ctx context.Context, method, path string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	return sendRequest(ctx, w, method, path, "")
}

func iRequestDashboard(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.Dashboard(ctx, token)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

func statusShouldBe(ctx context.Context, code int) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	return resp.ExpectStatus(code)
}

func statusShouldBeEither(ctx context.Context, a, b int) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	return resp.ExpectStatus(a, b)
}

func errorResponseMatchesSchema(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, body, err := w.lastDecoded()
	if err != nil {
		return err
	}
	return check(resp, schema.ErrorResponse(body))
}

func errorMessageContains(ctx context.Context, want string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	obj, err := resp.Object()
	if err != nil {
		return resp.Unexpected("error body is not a JSON object")
	}
	msg, _ := obj["message"].(string)
	if !strings.Contains(strings.ToLower(msg), strings.ToLower(want)) {
		return resp.Unexpected("error message %q does not contain %q", msg, want)
	}
	return nil
}

func authorizationError(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, body, err := w.lastDecoded()
	if err != nil {
		return err
	}
	if err := resp.ExpectStatus(http.StatusUnauthorized, http.StatusForbidden); err != nil {
		return err
	}
	if err := check(resp, schema.ErrorResponse(body)); err != nil {
		return err
	}
	if msg, _ := body.(map[string]any)["message"].(string); strings.TrimSpace(msg) == "" {
		return resp.Unexpected("authorization error carries no message")
	}
	return nil
}

func bodyContainsFields(ctx context.Context, list string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	obj, err := resp.Object()
	if err != nil {
		return resp.Unexpected("body is not a JSON object")
	}
	var missing []string
	for _, f := range splitFields(list) {
		if _, ok := obj[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return resp.Unexpected("body is missing fields %s", strings.Join(missing, ", "))
	}
	return nil
}
