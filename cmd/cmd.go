/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package madroxcmd facilitates the command line interface (CLI)
// and implements the main().
package madroxcmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/madrox-osint/madrox/hivemind"
	"github.com/madrox-osint/madrox/madroxapp"
	"go.uber.org/zap"
)

func Main() {
	flag.Parse()

	cfg, err := loadConfigFile()
	if err != nil {
		hivemind.Log.Fatal("failed loading config", zap.Error(err))
	}
	if repoDir != "" {
		cfg.Repository = repoDir
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	ctx := context.Background()

	app, err := madroxapp.New(ctx, cfg)
	if err != nil {
		hivemind.Log.Fatal("failed to run application", zap.Error(err))
	}

	madroxapp.TrapSignals()

	// implement standard (CLI-only) flags
	subCommand, subCommandFunc := getStandardSubcommand(app)
	if subCommandFunc != nil {
		if err := checkFlagParsing(); err != nil {
			hivemind.Log.Fatal("possible syntax error detected", zap.Error(err))
		}
		if err := subCommandFunc(); err != nil {
			hivemind.Log.Fatal("subcommand failed",
				zap.String("subcommand", subCommand),
				zap.Error(err))
		}
		return
	}

	// check for registered endpoint (API command)
	if remaining := flag.Args(); len(remaining) > 0 {
		err := app.RunCommand(ctx, remaining)
		app.Close()
		if err != nil {
			hivemind.Log.Fatal("subcommand failed", zap.Error(err))
		}
		return
	}

	// start the application server
	startedServer, err := app.Serve()
	if err != nil {
		hivemind.Log.Fatal("could not start server", zap.Error(err))
	}
	if !startedServer {
		hivemind.Log.Info("server is already running")
		return
	}
	select {}
}

// Gets CLI-only commands.
func getStandardSubcommand(app *madroxapp.App) (string, func() error) {
	standardCommands := map[string]func() error{
		"serve": func() error {
			if err := app.MustServe(); err != nil {
				return err
			}
			select {}
		},
		"help": func() error { //nolint:unparam
			fmt.Println(app.CommandLineHelp())
			return nil
		},
		"version": func() error { //nolint:unparam
			bi := app.BuildInfo()
			fmt.Printf("madrox %s (%s, %s/%s)\n", bi.Version, bi.GoVersion, bi.GoOS, bi.GoArch)
			return nil
		},
	}

	if len(flag.Args()) > 0 {
		subCommand := flag.Arg(0)
		subCommandFunc, ok := standardCommands[subCommand]
		if ok {
			return subCommand, subCommandFunc
		}
	}
	return "", nil
}

// checkFlagParsing returns an error if it looks like the
// program may have been invoked with the flags in the
// wrong place. This should NOT be used when the program is
// invoked as an API client, where the flags are arbitrary
// and belong to the command. It catches running:
// `madrox serve -config dev.json`
// where it actually needs to be run as:
// `madrox -config dev.json serve`
// Only for use when a standard command is present.
func checkFlagParsing() error {
	if flag.NArg() > 1 && flag.NFlag() == 0 {
		return errors.New("it looks like you intended to specify flags, but none were parsed; make sure flags go before positional arguments")
	}
	return nil
}

func loadConfigFile() (*madroxapp.Config, error) {
	cfgBytes, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && configFile == madroxapp.DefaultConfigFilePath() {
			err = nil
		}
		return new(madroxapp.Config), err
	}
	var cfg *madroxapp.Config
	if err := json.Unmarshal(cfgBytes, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", configFile, err)
	}
	if cfg == nil {
		cfg = new(madroxapp.Config)
	}
	return cfg, nil
}

var (
	configFile string
	repoDir    string
	listenAddr string
)

func init() {
	flag.StringVar(&configFile, "config", madroxapp.DefaultConfigFilePath(), "Path to the JSON config file")
	flag.StringVar(&repoDir, "repo", "", `Hivemind repository folder (":memory:" to keep nothing on disk)`)
	flag.StringVar(&listenAddr, "listen", "", "Address for the API server to listen on")
}
