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

// Package configuration loads the JSON file that drives the cmd/jsonserverd
// demo binary. The library packages (server, endpoint, schema, authority)
// never touch this package themselves; they're configured through Go
// struct literals and functional setters, not a config file.
package configuration

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
)

// AuthorityConfig selects and parameterizes one of the bundled authority
// implementations for the demo server. Type is one of "" (no authority,
// Session self-issues a UUID), "peeruid", "peerpid" or "token".
type AuthorityConfig struct {
	// Type names the authority implementation to construct.
	Type string `json:"type"`
	// Allow is the exact uid/name allow-list for "peeruid".
	Allow []string `json:"allow"`
	// UidMin/UidMax is the inclusive uid range for "peeruid"; when either
	// is non-zero the range is used and Allow is ignored.
	UidMin uint32 `json:"uidmin"`
	UidMax uint32 `json:"uidmax"`
	// Pids maps a decimal pid string to an identifier, for "peerpid".
	Pids map[string]string `json:"pids"`
	// Tokens maps a bearer token to an identifier, for "token".
	Tokens map[string]string `json:"tokens"`
}

// Configuration is the top-level shape of a jsonserverd config file.
type Configuration struct {
	// Network is "unix" or "tcp".
	Network string `json:"network"`
	// Listen is a socket path (Network "unix") or ":port" (Network "tcp").
	Listen string `json:"listen"`
	// MetricsListen is the address the Prometheus handler is served on, if
	// non-empty (e.g. ":9090").
	MetricsListen string `json:"metricslisten"`
	// Log is the access log file name; the console logger is used if empty.
	Log string `json:"log"`
	// Authority configures the connection/message authorizer.
	Authority AuthorityConfig `json:"authority"`
	// MultipleConnections lists identifiers allowed more than one
	// concurrent Session.
	MultipleConnections []string `json:"multipleconnections"`
	// Queued lists identifiers that have outbound queueing enabled from
	// startup.
	Queued []string `json:"queued"`
}

// DefaultConfiguration returns a Configuration with the same defaults a
// bare jsonserverd invocation would use without a config file.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Network: "unix",
		Listen:  "/var/run/jsonserverd.sock",
	}
}

// LoadConfigurationFile loads a configuration in JSON format from filename.
func LoadConfigurationFile(filename string) (*Configuration, error) {
	fd, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return LoadConfiguration(fd)
}

// LoadConfiguration reads JSON data from reader and returns a parsed
// configuration, defaults pre-filled for any field the document omits.
func LoadConfiguration(reader io.Reader) (*Configuration, error) {
	config := DefaultConfiguration()
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigurationBytes parses data as JSON and initializes a
// configuration from it.
func LoadConfigurationBytes(data []byte) (*Configuration, error) {
	return LoadConfiguration(bytes.NewReader(data))
}
