// Command web serves the training monitor: it builds the training
// stack for the given config and exposes the run statistics, plots and
// start and stop controls on a web page.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/gkaf89/IPU-examples/conf"
	"github.com/gkaf89/IPU-examples/model"
	"github.com/gkaf89/IPU-examples/web"
)

func main() {
	log.SetFlags(0)
	var configFile, presetFile, presetName, addr string
	var useAuth bool
	flag.StringVar(&configFile, "config", "", "json config file of a previous run")
	flag.StringVar(&presetFile, "presets", "configs.yml", "yaml preset definitions")
	flag.StringVar(&presetName, "preset", "", "name of the preset to apply")
	flag.StringVar(&addr, "addr", ":8080", "listen address")
	flag.BoolVar(&useAuth, "auth", false, "authenticate users with pam")
	flag.Parse()

	c := conf.Default()
	var err error
	switch {
	case configFile != "":
		c, err = conf.Load(configFile)
		checkErr(err)
	case presetName != "":
		presets, err := conf.LoadPresets(presetFile)
		checkErr(err)
		c, err = presets.Apply(c, presetName)
		checkErr(err)
	default:
		fmt.Println("usage: web -config <file> | -preset <name> [opts]")
		os.Exit(1)
	}
	c, err = c.Resolve()
	checkErr(err)

	t, err := web.NewTemplates()
	checkErr(err)
	t.AddMenuItem(web.Link{Url: "/train/stats", Name: "train"})
	t.AddMenuItem(web.Link{Url: "/config", Name: "config"})

	monitor := web.NewMonitor(t, c)
	var cancel context.CancelFunc
	monitor.StartFn = func() {
		trainer, err := model.BuildTrainer(c)
		if err != nil {
			log.Println("error building trainer:", err)
			monitor.Done()
			return
		}
		trainer.OnLog = monitor.OnLog
		trainer.OnEval = monitor.OnEval
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		if _, err := trainer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Println("training error:", err)
		}
		monitor.Done()
	}
	monitor.StopFn = func() {
		if cancel != nil {
			cancel()
		}
	}

	r := mux.NewRouter()
	monitor.Routes(r)
	var handler http.Handler = r
	if useAuth {
		handler = web.NewAuth().Middleware(r)
	}
	fmt.Println("serving training monitor at http://localhost" + addr)
	checkErr(http.ListenAndServe(addr, handler))
}

func checkErr(err error) {
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
