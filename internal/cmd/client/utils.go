package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// credentialsFromEnv returns the publisher credentials from the environment
// when the corresponding flag was left empty.
func credentialsFromEnv(username, password string) (string, string) {
	if username == "" {
		username = os.Getenv("MAILROOM_PUBLISHER_USERNAME")
	}
	if password == "" {
		password = os.Getenv("MAILROOM_PUBLISHER_PASSWORD")
	}
	return username, password
}

// doJSON performs a request with an optional JSON body and pretty-prints
// the JSON response to stdout.
func doJSON(method, url string, body any, configure func(*http.Request)) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if configure != nil {
		configure(req)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println("status:", resp.Status)
	printJSON(raw)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}

// printJSON re-indents a JSON body for the terminal; non-JSON bodies print
// as-is.
func printJSON(raw []byte) {
	if len(raw) == 0 {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}
