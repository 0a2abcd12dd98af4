package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

type controlResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// getJSON issues a GET against the daemon's control API and decodes its
// envelope, surfacing a call error as a Go error rather than printing a
// malformed result.
func getJSON(path string) (json.RawMessage, error) {
	url, err := controlURL(path)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp)
}

func postJSON(path string, body []byte) (json.RawMessage, error) {
	url, err := controlURL(path)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp)
}

func decodeEnvelope(resp *http.Response) (json.RawMessage, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env controlResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, raw)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("%s", env.Error)
	}
	return env.Result, nil
}

func printResult(result json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func runNodes(args []string) error {
	fs := flag.NewFlagSet("nodes", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := getJSON("/v1/nodes")
	if err != nil {
		return err
	}
	return printResult(result)
}

func runServices(args []string) error {
	fs := flag.NewFlagSet("services", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := getJSON("/v1/services")
	if err != nil {
		return err
	}
	return printResult(result)
}

func runActions(args []string) error {
	fs := flag.NewFlagSet("actions", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := getJSON("/v1/actions")
	if err != nil {
		return err
	}
	return printResult(result)
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := getJSON("/v1/health")
	if err != nil {
		return err
	}
	return printResult(result)
}

func runCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	paramsFlag := fs.String("params", "", "JSON params object (default: read from stdin if piped, else null)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: brokerctl call [-params '{...}'] <action>")
	}
	action := fs.Arg(0)

	rawParams := *paramsFlag
	if rawParams == "" {
		if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err == nil && len(data) > 0 {
				rawParams = string(data)
			}
		}
	}
	if rawParams == "" {
		rawParams = "null"
	}

	var params any
	if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
		return fmt.Errorf("invalid -params JSON: %w", err)
	}
	body, err := json.Marshal(struct {
		Params any `json:"params"`
	}{Params: params})
	if err != nil {
		return err
	}

	result, err := postJSON("/v1/call/"+action, body)
	if err != nil {
		return err
	}
	return printResult(result)
}
