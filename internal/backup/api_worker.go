package backup

import (
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/agncf/netfortress/internal/inventory"
)

const apiRequestTimeout = 60 * time.Second

// APIWorker fetches configurations over HTTPS for the API platforms
// (PAN-OS, FortiOS). Firewalls ship with self-signed management certs,
// so TLS verification is skipped.
type APIWorker struct {
	timeout time.Duration
}

// NewAPIWorker creates an HTTPS config fetcher with the default timeout.
func NewAPIWorker() *APIWorker {
	return &APIWorker{timeout: apiRequestTimeout}
}

func (w *APIWorker) newHTTPClient(jar http.CookieJar) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: w.timeout,
		Jar:     jar,
	}
}

// Fetch dispatches to the platform's export flow.
func (w *APIWorker) Fetch(snap inventory.Snapshot) (string, error) {
	switch snap.DriverID {
	case "paloaltonetworks_panos":
		return w.fetchPANOS(snap)
	case "fortinet_fortios":
		return w.fetchFortiOS(snap)
	default:
		return "", fmt.Errorf("no API flow for driver %q", snap.DriverID)
	}
}

type panosKeygenResponse struct {
	Status string `xml:"status,attr"`
	Result struct {
		Key string `xml:"key"`
	} `xml:"result"`
	Msg string `xml:"msg"`
}

// fetchPANOS authenticates via the keygen API and exports the candidate
// configuration as XML.
func (w *APIWorker) fetchPANOS(snap inventory.Snapshot) (string, error) {
	client := w.newHTTPClient(nil)
	base := "https://" + snap.IP + "/api/"

	// The keygen API takes `passwd`, not `password`.
	keygenURL := fmt.Sprintf("%s?type=keygen&user=%s&passwd=%s",
		base, url.QueryEscape(snap.Username), url.QueryEscape(snap.Password))
	body, err := w.get(client, keygenURL)
	if err != nil {
		return "", fmt.Errorf("panos keygen on %s: %w", snap.IP, err)
	}

	var keygen panosKeygenResponse
	if err := xml.Unmarshal(body, &keygen); err != nil {
		return "", fmt.Errorf("panos keygen response from %s: %w", snap.IP, err)
	}
	if keygen.Status != "success" || keygen.Result.Key == "" {
		return "", fmt.Errorf("panos keygen rejected on %s: %s", snap.IP, keygen.Msg)
	}

	exportURL := fmt.Sprintf("%s?type=export&category=configuration&key=%s",
		base, url.QueryEscape(keygen.Result.Key))
	config, err := w.get(client, exportURL)
	if err != nil {
		return "", fmt.Errorf("panos export on %s: %w", snap.IP, err)
	}
	return string(config), nil
}

// fetchFortiOS logs in with the session-cookie flow, pulls the global config
// backup and logs out best-effort.
func (w *APIWorker) fetchFortiOS(snap inventory.Snapshot) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", err
	}
	client := w.newHTTPClient(jar)
	base := "https://" + snap.IP

	login := url.Values{
		"username":  {snap.Username},
		"secretkey": {snap.Password},
		"ajax":      {"1"},
	}
	loginResp, err := client.Post(base+"/logincheck",
		"application/x-www-form-urlencoded", strings.NewReader(login.Encode()))
	if err != nil {
		return "", fmt.Errorf("fortios login on %s: %w", snap.IP, err)
	}
	io.Copy(io.Discard, loginResp.Body)
	loginResp.Body.Close()

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	// FortiOS stores the CSRF token as a quoted cookie value. Older builds
	// omit it; the backup endpoint then works without the header.
	var csrfToken string
	for _, cookie := range jar.Cookies(baseURL) {
		if cookie.Name == "ccsrftoken" {
			csrfToken = strings.Trim(cookie.Value, `"`)
			break
		}
	}

	req, err := http.NewRequest(http.MethodGet,
		base+"/api/v2/monitor/system/config/backup?scope=global", nil)
	if err != nil {
		return "", err
	}
	if csrfToken != "" {
		req.Header.Set("X-CSRFTOKEN", csrfToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fortios backup on %s: %w", snap.IP, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fortios backup read from %s: %w", snap.IP, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fortios backup on %s: HTTP %d", snap.IP, resp.StatusCode)
	}

	// Session cleanup; a failure here does not invalidate the backup.
	if logoutResp, err := client.Post(base+"/logout", "", nil); err == nil {
		io.Copy(io.Discard, logoutResp.Body)
		logoutResp.Body.Close()
	}

	return string(body), nil
}

func (w *APIWorker) get(client *http.Client, requestURL string) ([]byte, error) {
	resp, err := client.Get(requestURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return body, nil
}

// Compile-time check
var _ ConfigFetcher = (*APIWorker)(nil)
