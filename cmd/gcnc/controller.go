package main

import (
	"io"
	"log"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/machine/grbl"
	"github.com/mastercactapus/gsend/machine/sim"
	"github.com/mastercactapus/gsend/spjs"
)

// controller is a Link that also tracks the controller's position, so new
// programs can be planned from where the machine is.
type controller interface {
	machine.Link
	Context() gcode.Context
	io.Closer
}

type spjsController struct {
	*grbl.SPJSLink
	sp *spjs.SPJS
}

func (c spjsController) Close() error {
	c.SPJSLink.Close()
	return c.sp.Close()
}

type simController struct{ *sim.Link }

func (simController) Close() error { return nil }

func openController(cfg *Config) (controller, error) {
	switch {
	case cfg.Controller == "sim":
		log.Println("Using simulated controller.")
		return simController{sim.NewLink(sim.Config{Delay: cfg.Sim.Delay, FailAt: -1})}, nil
	case cfg.SPJS != "":
		sp := spjs.NewSPJS(cfg.SPJS)
		return spjsController{
			SPJSLink: grbl.NewSPJSLink(sp, cfg.Port, cfg.Baud, cfg.Timeout),
			sp:       sp,
		}, nil
	}

	l, err := grbl.Open(grbl.SerialConfig{Port: cfg.Port, Baud: cfg.Baud, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	log.Println("Opened", cfg.Port)
	return l, nil
}
