package main

import (
	"fmt"

	"github.com/Speshl/gorrc_teleop/internal/app"
	"github.com/Speshl/gorrc_teleop/internal/config"
	socketio "github.com/googollee/go-socket.io"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := config.GetConfig()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("invalid log level %s, using info\n", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	var client *socketio.Client
	if cfg.ServerCfg.Enabled {
		socketURI := fmt.Sprintf("http://%s", cfg.ServerCfg.Server)
		client, err = socketio.NewClient(socketURI, nil)
		if err != nil {
			err = fmt.Errorf("error creating client - %w", err)
			panic(err)
		}
	}

	app, err := app.NewApp(cfg, client)
	if err != nil {
		log.Fatalf("failed creating app: %s", err)
	}

	err = app.RegisterHandlers()
	if err != nil {
		log.Errorf("continuing without server: %s\n", err)
	}

	err = app.Start()
	if err != nil {
		log.Printf("teleop shutdown with error: %s", err.Error())
	} else {
		log.Println("teleop shutdown successfully")
	}
}
