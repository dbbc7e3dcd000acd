package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/autopeer-bms/cmd/cpeer-bms-agent/app"
)

func main() {
	app.NewApp().Run()
}
