package main

import (
	"gateway/internal/app"
	"gateway/internal/config"
	"gateway/internal/infra/chain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	err := godotenv.Load(os.Getenv("ENVPATH"))
	if err != nil {
		panic("Can't load .env file: " + err.Error())
	}

	config := config.ReadConfig()
	config.DB = postgres.Init(config)

	unixLogger := logger.Init(config.Prod_env)

	chainClient := chain.Init(config)
	taskQueue := queue.Init(config.Amqp.Url, unixLogger)

	app := &app.App{
		Config: config,
		Db:     config.DB,
		Chain:  chainClient,
		Queue:  taskQueue,
		Log:    unixLogger,
	}

	app.Start()
}
