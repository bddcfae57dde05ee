package app

import (
	"fmt"
	"gateway/internal/config"
	"gateway/internal/infra/chain"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"gateway/internal/service"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Db     *gorm.DB
	Chain  *chain.Client
	Queue  *queue.Queue
	Log    logger.Logger
}

func (app *App) Start() {
	services := service.NewServices(app.Db, app.Chain, app.Chain, app.Queue, app.Log, app.Config)

	app.Autostart(services)

	fmt.Println("gateway engine is running")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interrupt

	app.Queue.Close()
}

// start autostart services
func (app *App) Autostart(services *service.Services) {

	fmt.Println("Autostart: re-enqueue non-terminal transactions")
	services.Tracker.RunAutostartRecovery()

	fmt.Println("Autostart: re-watch monitored addresses")
	services.Observer.RunAutostartWatch()

	fmt.Println("Autostart: start settlement sweeps")
	services.Settlement.StartSweeps()
}
