package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabtunnel/internal/types"
)

func registerTabHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/state", Summary: "Current tab strip, address bar and loading indicator", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			return stateAfter(ctx, svc, nil)
		})

	type newTabOutput struct {
		Body types.TabView
	}
	huma.Register(api, huma.Operation{OperationID: "new-tab", Method: http.MethodPost, Path: "/api/v1/tabs", Summary: "Open a new tab and make it active", Tags: []string{"Tabs"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct{}) (*newTabOutput, error) {
			tab, err := svc.NewTab(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &newTabOutput{Body: tab}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "activate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{id}/activate", Summary: "Make a tab active", Description: "Unknown ids are ignored.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*stateOutput, error) {
			return stateAfter(ctx, svc, svc.SelectTab(ctx, input.ID))
		})

	huma.Register(api, huma.Operation{OperationID: "close-tab", Method: http.MethodDelete, Path: "/api/v1/tabs/{id}", Summary: "Close a tab", Description: "Closing the last tab opens a fresh one. Unknown ids are ignored.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*stateOutput, error) {
			return stateAfter(ctx, svc, svc.CloseTab(ctx, input.ID))
		})
}

func registerNavigationHandlers(api huma.API, svc Service) {
	type navigateOutput struct {
		Body struct {
			URL   string     `json:"url" doc:"Resolved destination; empty when the input was blank"`
			State types.View `json:"state"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "navigate", Method: http.MethodPost, Path: "/api/v1/navigate", Summary: "Submit address-bar input in the active tab", Tags: []string{"Navigation"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Input string `json:"input" doc:"URL, bare domain or search terms"`
			}
		}) (*navigateOutput, error) {
			target, err := svc.Submit(ctx, input.Body.Input)
			if err != nil {
				return nil, mapErr(err)
			}
			view, err := svc.State(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &navigateOutput{}
			out.Body.URL = target
			out.Body.State = view
			return out, nil
		})

	actions := []struct {
		id, path, summary string
		fn                func(context.Context) error
	}{
		{"back", "/api/v1/back", "Go back in the active tab", svc.Back},
		{"forward", "/api/v1/forward", "Go forward in the active tab", svc.Forward},
		{"reload", "/api/v1/reload", "Reload the active tab", svc.Reload},
		{"devtools", "/api/v1/devtools", "Inject the inspection console into the active tab", svc.Devtools},
	}
	for _, a := range actions {
		fn := a.fn
		huma.Register(api, huma.Operation{OperationID: a.id, Method: http.MethodPost, Path: a.path, Summary: a.summary, Tags: []string{"Navigation"}},
			func(ctx context.Context, input *struct{}) (*stateOutput, error) {
				return stateAfter(ctx, svc, fn(ctx))
			})
	}
}
