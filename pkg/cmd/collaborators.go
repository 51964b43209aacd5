package cmd

import (
	"log/slog"

	"github.com/dukex/drip/pkg/collaborators/httpgateway"
	"github.com/dukex/drip/pkg/collaborators/logging"
	"github.com/dukex/drip/pkg/protocol"
)

// NewCollaborators posts side effects to the gateway at gatewayURL, or only
// logs them when no gateway is configured.
func NewCollaborators(gatewayURL, gatewayToken string, webhooks protocol.WebhookEnqueuer, logger *slog.Logger) protocol.Collaborators {
	if gatewayURL == "" {
		logged := logging.New(logger, slog.LevelInfo)

		return protocol.Collaborators{
			Communicator: logged,
			CRM:          logged,
			Internal:     logged,
			Membership:   logged,
			Webhooks:     webhooks,
		}
	}

	var options []httpgateway.Option
	if gatewayToken != "" {
		options = append(options, httpgateway.WithHeader("Authorization", "Bearer "+gatewayToken))
	}

	gateway := httpgateway.New(gatewayURL, logger, options...)

	return protocol.Collaborators{
		Communicator: gateway,
		CRM:          gateway,
		Internal:     gateway,
		Membership:   gateway,
		Webhooks:     webhooks,
	}
}
