/* Copyright (c) 2016-2017 Gregor Riepl
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/qtproject/jsonstream/authority"
	"github.com/qtproject/jsonstream/configuration"
	"github.com/qtproject/jsonstream/metrics"
	"github.com/qtproject/jsonstream/schema"
	"github.com/qtproject/jsonstream/server"
	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

const (
	moduleMain = "main"
	//
	eventMainConfig     = "config"
	eventMainListening  = "listening"
	eventMainMetrics    = "metrics"
	eventMainAdded      = "connection_added"
	eventMainRemoved    = "connection_removed"
	eventMainAuthFailed = "authorization_failed"
	eventMainValidation = "validation_failed"
	//
	errorMainConfig    = "config"
	errorMainAuthority = "authority"
	errorMainSchema    = "schema"
	errorMainListen    = "listen"
)

func main() {
	logger := &util.ModuleLogger{
		Logger: &util.ConsoleLogger{},
		Defaults: util.Dict{
			"module": moduleMain,
		},
		AddTimestamp: true,
	}

	var configname string
	if len(os.Args) > 1 {
		configname = os.Args[1]
	}

	var config *configuration.Configuration
	if configname != "" {
		c, err := configuration.LoadConfigurationFile(configname)
		if err != nil {
			log.Fatal("Error parsing configuration: ", err)
		}
		config = c
	} else {
		config = configuration.DefaultConfiguration()
	}

	logger.Logd(util.Dict{
		"event":   eventMainConfig,
		"network": config.Network,
		"listen":  config.Listen,
	})

	if config.Log != "" {
		flogger, err := util.NewFileLogger(config.Log, true)
		if err != nil {
			log.Fatal("Error opening log: ", err)
		}
		util.SetGlobalStandardLogger(flogger)
	}

	auth, err := buildAuthority(config.Authority)
	if err != nil {
		logger.Logd(util.Dict{"event": "error", "error": errorMainAuthority, "message": err.Error()})
		log.Fatal(err)
	}

	srv := server.NewServer(auth)

	for _, id := range config.MultipleConnections {
		srv.EnableMultipleConnections(id)
	}
	for _, id := range config.Queued {
		srv.EnableQueuing(id)
	}

	inboundMode, outboundMode := parseSchemaControl(os.Getenv("JSONSERVER_SCHEMA_CONTROL"))

	if dir := os.Getenv("JSONSERVER_SCHEMA_INBOUND_PATH"); dir != "" {
		v := schema.NewValidator()
		if err := v.LoadFromFolder(dir, "", ""); err != nil {
			logger.Logd(util.Dict{"event": "error", "error": errorMainSchema, "direction": "inbound", "message": err.Error()})
		}
		srv.SetInboundValidator(v, inboundMode)
	}
	if dir := os.Getenv("JSONSERVER_SCHEMA_OUTBOUND_PATH"); dir != "" {
		v := schema.NewValidator()
		if err := v.LoadFromFolder(dir, "", ""); err != nil {
			logger.Logd(util.Dict{"event": "error", "error": errorMainSchema, "direction": "outbound", "message": err.Error()})
		}
		srv.SetOutboundValidator(v, outboundMode)
	}

	srv.SetOnConnectionAdded(func(identifier string) {
		logger.Logd(util.Dict{"event": eventMainAdded, "identifier": identifier})
	})
	srv.SetOnConnectionRemoved(func(identifier string) {
		logger.Logd(util.Dict{"event": eventMainRemoved, "identifier": identifier})
	})
	srv.SetOnAuthorizationFailed(func() {
		logger.Logd(util.Dict{"event": eventMainAuthFailed})
	})
	srv.SetOnValidationFailed(func(direction, identifier string, obj wire.Value, err error) {
		logger.Logd(util.Dict{
			"event":      eventMainValidation,
			"direction":  direction,
			"identifier": identifier,
			"message":    err.Error(),
		})
	})
	srv.SetOnMessageReceived(func(identifier string, obj wire.Value) {
		logger.Logd(util.Dict{"event": "message_received", "identifier": identifier})
	})

	if config.MetricsListen != "" {
		logger.Logd(util.Dict{"event": eventMainMetrics, "listen": config.MetricsListen})
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.PromHandler())
		go func() {
			log.Fatal(http.ListenAndServe(config.MetricsListen, mux))
		}()
	}

	switch config.Network {
	case "tcp":
		port, err := strconv.Atoi(strings.TrimPrefix(config.Listen, ":"))
		if err != nil {
			logger.Logd(util.Dict{"event": "error", "error": errorMainListen, "message": err.Error()})
			log.Fatal(err)
		}
		err = srv.ListenTcp(port)
		if err != nil {
			log.Fatal(err)
		}
	default:
		err = srv.ListenLocal(config.Listen)
		if err != nil {
			log.Fatal(err)
		}
	}

	logger.Logd(util.Dict{"event": eventMainListening, "network": config.Network, "listen": config.Listen})

	select {}
}

// buildAuthority constructs the authority.Authority named by cfg.Type, or
// nil (Session self-issues a UUID) when Type is empty.
func buildAuthority(cfg configuration.AuthorityConfig) (authority.Authority, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "peeruid":
		if cfg.UidMax > 0 || cfg.UidMin > 0 {
			return authority.NewPeerUIDRangeAuthority(cfg.UidMin, cfg.UidMax), nil
		}
		return authority.NewPeerUIDAuthority(cfg.Allow...), nil
	case "peerpid":
		byPid := make(map[int32]string, len(cfg.Pids))
		for pidStr, id := range cfg.Pids {
			pid, err := strconv.ParseInt(pidStr, 10, 32)
			if err != nil {
				return nil, err
			}
			byPid[int32(pid)] = id
		}
		return authority.NewPeerPIDAuthority(byPid), nil
	case "token":
		return authority.NewTokenAuthority(cfg.Tokens), nil
	default:
		return nil, &unknownAuthorityError{cfg.Type}
	}
}

type unknownAuthorityError struct{ Type string }

func (e *unknownAuthorityError) Error() string {
	return "unknown authority type " + strconv.Quote(e.Type)
}

// parseSchemaControl reads JSONSERVER_SCHEMA_CONTROL ("warn", "drop" or
// "warn,drop") into the inbound/outbound ValidationMode pair, applied to
// both directions equally.
func parseSchemaControl(v string) (server.ValidationMode, server.ValidationMode) {
	var mode server.ValidationMode
	for _, part := range strings.Split(v, ",") {
		switch strings.TrimSpace(part) {
		case "warn":
			mode |= server.ValidationWarnIfInvalid
		case "drop":
			mode |= server.ValidationDropIfInvalid
		}
	}
	return mode, mode
}
