package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mkral/clueroom/clients"
	"github.com/mkral/clueroom/internal/engine"
	"github.com/mkral/clueroom/internal/push"
	"github.com/mkral/clueroom/internal/uibridge"
)

// Services holds the assembled application components.
type Services struct {
	RoomClient        *clients.RoomClient
	PushConsumer      *push.Consumer
	Manager           *engine.Manager
	ConnectionManager *uibridge.ConnectionManager
	Bridge            *uibridge.Handler
}

func setupServices(ctx context.Context, config *Config, localUser string) (*Services, error) {
	roomClient := clients.NewRoomClient(config.GameServer.BaseURL, localUser)

	pushConfig := push.DefaultConfig()
	if config.Push.URL != "" {
		pushConfig.URL = config.Push.URL
	}
	if config.Push.StreamName != "" {
		pushConfig.StreamName = config.Push.StreamName
	}
	pushConsumer, err := push.NewConsumer(pushConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create push consumer: %w", err)
	}

	engineConfig := engine.DefaultConfig()
	engineConfig.PollInterval = config.pollInterval()
	if config.Engine.CountdownSeconds > 0 {
		engineConfig.CountdownSeconds = config.Engine.CountdownSeconds
	}
	if config.Engine.ChatHistoryLimit > 0 {
		engineConfig.ChatHistoryLimit = config.Engine.ChatHistoryLimit
	}

	var manager *engine.Manager
	connectionManager := uibridge.NewConnectionManager(uibridge.DefaultConnectionConfig(), func(roomID int) {
		// Last UI client left: tear the room view down.
		manager.CloseRoom(roomID)
	})
	manager = engine.NewManager(ctx, engineConfig, localUser, roomClient, pushConsumer, connectionManager, clockwork.NewRealClock())

	bridge := uibridge.NewHandler(ctx, connectionManager, manager)

	return &Services{
		RoomClient:        roomClient,
		PushConsumer:      pushConsumer,
		Manager:           manager,
		ConnectionManager: connectionManager,
		Bridge:            bridge,
	}, nil
}

func (s *Services) shutdown() {
	s.Manager.CloseAll()
	s.PushConsumer.Close()
}
