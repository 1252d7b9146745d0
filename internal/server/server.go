package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bitfit/internal/domain"
	"bitfit/internal/engine"
	"bitfit/internal/oracle"
	"bitfit/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"precondition_failed"`
	Message string         `json:"message" example:"settlement: challenge is active, not finalizing"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the BitFitness API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("BitFitness API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStats(group, cfg.Engine)
	registerWorkouts(group, cfg.Engine)
	registerMempool(group, cfg.Engine)
	registerChallenges(group, cfg.Engine)
	registerRelay(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	}
	var pe engine.PreconditionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusConflict, "precondition_failed", err.Error(), map[string]any{"op": pe.Op})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "precondition_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>BitFitness API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Derived stats and challenge progress",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		snap, err := e.DeriveState(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{Stats: snap.Stats, Challenges: challengeItems(snap.Challenges)}}, nil
	})
}

func registerWorkouts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-workout",
		Method:        http.MethodPost,
		Path:          "/workouts",
		Summary:       "Submit a workout block",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body SubmitWorkoutRequest `json:"body"`
	}) (*struct {
		Body domain.Workout `json:"body"`
	}, error) {
		w, err := e.SubmitWorkout(ctx, engine.WorkoutDraft{
			Exercise:     input.Body.Exercise,
			Reps:         input.Body.Reps,
			Sets:         input.Body.Sets,
			DurationSecs: input.Body.DurationSecs,
			Photo:        input.Body.Photo,
			SelfAttested: input.Body.SelfAttested,
			Submitter:    input.Body.Submitter,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workout `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workouts",
		Method:      http.MethodGet,
		Path:        "/workouts",
		Summary:     "List the workout log, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WorkoutListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkouts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkoutListResponse `json:"body"`
		}{Body: WorkoutListResponse{Items: workoutItems(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workout",
		Method:      http.MethodGet,
		Path:        "/workouts/{id}",
		Summary:     "Get a workout",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Workout `json:"body"`
	}, error) {
		w, err := e.Repo.GetWorkout(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workout `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-workouts",
		Method:      http.MethodPost,
		Path:        "/workouts/import",
		Summary:     "Import externally sourced workouts",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ImportWorkoutsRequest `json:"body"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		added, err := e.ImportWorkouts(ctx, input.Body.Workouts, "api")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Added: added}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-workout",
		Method:      http.MethodPost,
		Path:        "/workouts/{id}/review",
		Summary:     "Validator review decision",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body ReviewWorkoutRequest `json:"body"`
	}) (*struct {
		Body domain.Workout `json:"body"`
	}, error) {
		actorID, authErr := requireValidator(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.SetVerificationStatus(ctx, input.ID, input.Body.Status, input.Body.Note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workout `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-oracle-result",
		Method:      http.MethodPost,
		Path:        "/workouts/{id}/oracle",
		Summary:     "Apply a late oracle determination",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body OracleResultRequest `json:"body"`
	}) (*struct {
		Body domain.Workout `json:"body"`
	}, error) {
		if _, authErr := requireValidator(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := e.ApplyOracleResult(ctx, input.ID, oracle.Determination{
			Verified:   input.Body.Verified,
			Confidence: input.Body.Confidence,
			Reason:     input.Body.Reason,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workout `json:"body"`
		}{Body: w}, nil
	})
}

func registerMempool(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-mempool",
		Method:      http.MethodGet,
		Path:        "/mempool",
		Summary:     "Workouts awaiting review, oldest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WorkoutListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMempool(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkoutListResponse `json:"body"`
		}{Body: WorkoutListResponse{Items: workoutItems(items)}}, nil
	})
}

func registerChallenges(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-challenges",
		Method:      http.MethodGet,
		Path:        "/challenges",
		Summary:     "List challenges in creation order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ChallengeListResponse `json:"body"`
	}, error) {
		snap, err := e.DeriveState(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChallengeListResponse `json:"body"`
		}{Body: ChallengeListResponse{Items: challengeItems(snap.Challenges)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-challenge",
		Method:      http.MethodGet,
		Path:        "/challenges/{id}",
		Summary:     "Get a challenge",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Challenge `json:"body"`
	}, error) {
		c, err := e.Repo.GetChallenge(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Challenge `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "forge-challenge",
		Method:        http.MethodPost,
		Path:          "/challenges",
		Summary:       "Forge a challenge",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ForgeChallengeRequest `json:"body"`
	}) (*struct {
		Body domain.Challenge `json:"body"`
	}, error) {
		c, err := e.ForgeChallenge(ctx, engine.ChallengeDraftOptions{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			TargetDays:  input.Body.TargetDays,
			Category:    input.Body.Category,
			RewardSats:  input.Body.RewardSats,
			Recurrence:  input.Body.Recurrence,
			Draft:       input.Body.Draft,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Challenge `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-challenge",
		Method:      http.MethodPost,
		Path:        "/challenges/{id}/publish",
		Summary:     "Publish a draft challenge",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Challenge `json:"body"`
	}, error) {
		c, err := e.PublishChallenge(ctx, input.ID, actorOrLocal(ctx, e))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Challenge `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-challenge",
		Method:      http.MethodPost,
		Path:        "/challenges/{id}/join",
		Summary:     "Join an active challenge",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Challenge `json:"body"`
	}, error) {
		c, err := e.JoinChallenge(ctx, input.ID, actorOrLocal(ctx, e))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Challenge `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-settlement",
		Method:      http.MethodPost,
		Path:        "/challenges/{id}/settlement",
		Summary:     "Request sats settlement for a completed challenge",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body RequestSettlementRequest `json:"body"`
	}) (*struct {
		Body domain.Challenge `json:"body"`
	}, error) {
		actor := input.Body.Actor
		if actor == "" {
			actor = actorOrLocal(ctx, e)
		}
		c, err := e.RequestSettlement(ctx, input.ID, input.Body.ProofURL, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Challenge `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-settlement",
		Method:      http.MethodPost,
		Path:        "/challenges/{id}/settlement/resolve",
		Summary:     "Validator decision on a settlement request",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body ResolveSettlementRequest `json:"body"`
	}) (*struct {
		Body domain.Challenge `json:"body"`
	}, error) {
		actorID, authErr := requireValidator(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ResolveSettlement(ctx, input.ID, input.Body.Approve, input.Body.Note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Challenge `json:"body"`
		}{Body: c}, nil
	})
}

func registerRelay(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "relay-ledger",
		Method:      http.MethodGet,
		Path:        "/relay",
		Summary:     "Peer activity ledger",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RelayListResponse `json:"body"`
	}, error) {
		if e.Relay == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "relay_unavailable", "relay not configured", nil)
		}
		peers, err := e.Relay.Ledger(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RelayListResponse `json:"body"`
		}{Body: RelayListResponse{Items: peerItems(peers)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "relay-stats",
		Method:      http.MethodGet,
		Path:        "/relay/stats",
		Summary:     "Network totals",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body relayStatsBody `json:"body"`
	}, error) {
		if e.Relay == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "relay_unavailable", "relay not configured", nil)
		}
		stats, err := e.Relay.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body relayStatsBody `json:"body"`
		}{Body: relayStatsBody{TotalReps: stats.TotalReps, ActiveNodes: stats.ActiveNodes}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "relay-sync",
		Method:      http.MethodPost,
		Path:        "/relay/sync",
		Summary:     "Force a relay refresh",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if e.Relay == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "relay_unavailable", "relay not configured", nil)
		}
		if err := e.Relay.Sync(ctx); err != nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "relay_unavailable", err.Error(), nil)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "synced"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"20"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: eventItems(items)}}, nil
	})
}

type relayStatsBody struct {
	TotalReps   int `json:"total_reps"`
	ActiveNodes int `json:"active_nodes"`
}

func actorOrLocal(ctx context.Context, e engine.Engine) string {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID
	}
	if e.Config != nil {
		return e.Config.Participant.Name
	}
	return "local"
}
