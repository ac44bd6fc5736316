package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabtunnel/internal/types"
)

func registerSettingsHandlers(api huma.API, svc Service) {
	type settingsOutput struct {
		Body types.SettingsView
	}
	huma.Register(api, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Current tunnel endpoint and presets", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			s, err := svc.Settings(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: s}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "save-settings", Method: http.MethodPut, Path: "/api/v1/settings", Summary: "Save the tunnel endpoint", Description: "A successful save resets every tab.", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Endpoint string `json:"endpoint" required:"true" doc:"ws:// or wss:// tunnel endpoint"`
			}
		}) (*settingsOutput, error) {
			if err := svc.SaveSettings(ctx, input.Body.Endpoint); err != nil {
				return nil, mapErr(err)
			}
			s, err := svc.Settings(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: s}, nil
		})

	type messageOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "post-message", Method: http.MethodPost, Path: "/api/v1/messages", Summary: "Deliver a message from embedded content", Description: "Only messages of type navigate are acted on.", Tags: []string{"Messages"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *struct {
			Body types.Message
		}) (*messageOutput, error) {
			if err := svc.HandleMessage(ctx, input.Body); err != nil {
				return nil, mapErr(err)
			}
			out := &messageOutput{}
			out.Body.Status = "accepted"
			return out, nil
		})
}
