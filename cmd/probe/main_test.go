package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
)

// TestHelperProcess is a subprocess entrypoint used by tests.
//
// The parent test runs the current test binary with -test.run=TestHelperProcess
// and GO_WANT_HELPER_PROCESS=1. Arguments after a literal "--" are the CLI args.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		os.Args = []string{args[0]}
	}

	main()
	os.Exit(0)
}

// runCmd executes main() in a subprocess with exactly env and returns its
// stdout, stderr and exit code.
func runCmd(t *testing.T, env []string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmdArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = append([]string{"GO_WANT_HELPER_PROCESS=1"}, env...)
	cmd.Dir = t.TempDir()

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if err == nil {
		return outBuf.String(), errBuf.String(), 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return outBuf.String(), errBuf.String(), ee.ExitCode()
	}
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

const pageBody = `{"status":"OK","data":{"products":[
	{"asin":"B01","product_title":"Desk lamp","product_price":"$24.99","currency":"USD","is_prime":true,"product_num_ratings":310},
	{"asin":"B02","product_title":"Floor lamp","product_price":"€39,00","currency":"USD","is_prime":false,"sponsored":true}
]}}`

func newAPI(t *testing.T, body string, status int) (*httptest.Server, func(string) string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-rapidapi-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	env := map[string]string{
		"RAPIDAPI_URL":  srv.URL + "/products-by-category",
		"RAPIDAPI_KEY":  "k",
		"RAPIDAPI_HOST": "real-time-amazon-data.p.rapidapi.com",
	}
	return srv, func(k string) string { return env[k] }
}

func TestRun_DefaultModePrintsExtractedCSV(t *testing.T) {
	t.Parallel()

	_, getenv := newAPI(t, pageBody, http.StatusOK)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr, getenv); code != 0 {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}

	recs, err := csv.NewReader(&stdout).ReadAll()
	if err != nil {
		t.Fatalf("stdout is not CSV: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records=%d, want header + 2", len(recs))
	}
	header := strings.Join(recs[0], ",")
	if !strings.HasPrefix(header, "asin,product_title,product_price") || !strings.HasSuffix(header, ",sponsored") {
		t.Fatalf("header=%s", header)
	}
	if recs[1][2] != "$24.99" {
		t.Fatalf("raw price=%q, want unparsed", recs[1][2])
	}
}

func TestRun_CleanModeParsesPrices(t *testing.T) {
	t.Parallel()

	_, getenv := newAPI(t, pageBody, http.StatusOK)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-clean"}, &stdout, &stderr, getenv); code != 0 {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}

	recs, err := csv.NewReader(&stdout).ReadAll()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	idx := -1
	for j, c := range recs[0] {
		if c == "currency" {
			t.Fatalf("currency must be dropped in clean mode")
		}
		if c == "product_price" {
			idx = j
		}
	}
	if idx < 0 {
		t.Fatalf("product_price missing from %v", recs[0])
	}
	if recs[1][idx] != "24.99" || recs[2][idx] != "" {
		t.Fatalf("prices=%q,%q, want 24.99 and empty", recs[1][idx], recs[2][idx])
	}
}

func TestRun_ReportMode(t *testing.T) {
	t.Parallel()

	_, getenv := newAPI(t, pageBody, http.StatusOK)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-report"}, &stdout, &stderr, getenv); code != 0 {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "rows: 2\n") {
		t.Fatalf("report=%q", out)
	}
	if !strings.Contains(out, "non_null=2 distinct=2") || !strings.Contains(out, "coupon_text") {
		t.Fatalf("report=%q", out)
	}
	if strings.Contains(out, ",") {
		t.Fatalf("report mode must not print CSV: %q", out)
	}
}

func TestRun_EmptyPageReport(t *testing.T) {
	t.Parallel()

	_, getenv := newAPI(t, `{"status":"OK","data":{}}`, http.StatusOK)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-report", "-page", "3"}, &stdout, &stderr, getenv); code != 0 {
		t.Fatalf("code=%d", code)
	}
	if stdout.String() != "columns: no rows sampled\n" {
		t.Fatalf("stdout=%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "page 3 has no products") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRun_FetchErrorExits1(t *testing.T) {
	t.Parallel()

	_, getenv := newAPI(t, `{"message":"quota"}`, http.StatusTooManyRequests)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr, getenv); code != 1 {
		t.Fatalf("code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "429") {
		t.Fatalf("stderr=%q, want status", stderr.String())
	}
}

func TestMain_ExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		env       []string
		args      []string
		wantCode  int
		wantInErr string
	}{
		{"bad_page", nil, []string{"-page", "0"}, 2, "-page must be >= 1"},
		{"unknown_flag", nil, []string{"-nope"}, 2, "flag provided but not defined"},
		{"missing_credentials", nil, nil, 1, "api.key"},
		{"bad_timeout", []string{"RAPIDAPI_KEY=k", "RAPIDAPI_HOST=h", "API_TIMEOUT=soon"}, nil, 1, "API_TIMEOUT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stdout, stderr, code := runCmd(t, tc.env, tc.args...)
			if code != tc.wantCode {
				t.Fatalf("exit=%d, want %d\nstderr:\n%s\nstdout:\n%s", code, tc.wantCode, stderr, stdout)
			}
			if !strings.Contains(stderr, tc.wantInErr) {
				t.Fatalf("stderr=%q, want contains %q", stderr, tc.wantInErr)
			}
		})
	}
}
