package jenkins

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/buildherd/buildherd/pkg/types"
)

type jobData struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Buildable bool   `json:"buildable"`
}

type job struct {
	client *Client
	data   jobData
}

func (j *job) Name() string { return j.data.Name }

func (j *job) URL() string { return strings.TrimRight(j.data.URL, "/") + "/" }

// Build queues a build. Parameterized jobs go through buildWithParameters.
func (j *job) Build(ctx context.Context, params map[string]string) (string, error) {
	target := j.URL() + "build"
	var form url.Values
	if len(params) > 0 {
		target = j.URL() + "buildWithParameters"
		form = url.Values{}
		for key, value := range params {
			form.Set(key, value)
		}
	}

	location, err := j.client.post(ctx, target, form)
	if err != nil {
		return "", err
	}
	if location == "" || queueItemID(location) == "" {
		return j.URL() + "lastBuild/", nil
	}
	return j.client.resolve(location), nil
}

// SCMURLs reads the git remotes from the job configuration
func (j *job) SCMURLs(ctx context.Context) ([]string, error) {
	r, err := j.client.call(ctx, http.MethodGet, j.URL()+"config.xml", nil, "")
	if err != nil {
		return nil, err
	}
	urls, err := parseSCMURLs(bytes.NewReader(r.body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", j.data.Name, err)
	}
	return urls, nil
}

// parseSCMURLs collects every <url> below a <userRemoteConfigs> element,
// which is where the git plugin stores remotes.
func parseSCMURLs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)
	var (
		urls    []string
		depth   int
		inURL   bool
		current strings.Builder
	)

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return urls, nil
		}
		if err != nil {
			return nil, err
		}

		switch el := token.(type) {
		case xml.StartElement:
			if el.Name.Local == "userRemoteConfigs" {
				depth++
			}
			if depth > 0 && el.Name.Local == "url" {
				inURL = true
				current.Reset()
			}
		case xml.CharData:
			if inURL {
				current.Write(el)
			}
		case xml.EndElement:
			switch {
			case el.Name.Local == "url" && inURL:
				inURL = false
				if value := strings.TrimSpace(current.String()); value != "" {
					urls = append(urls, value)
				}
			case el.Name.Local == "userRemoteConfigs" && depth > 0:
				depth--
			}
		}
	}
}

type buildData struct {
	Number   int    `json:"number"`
	URL      string `json:"url"`
	Building bool   `json:"building"`
	Result   string `json:"result"`
}

type build struct {
	client *Client
	data   buildData
}

func (b *build) URL() string { return b.data.URL }

func (b *build) Number() int { return b.data.Number }

// Status refreshes the build and maps its result
func (b *build) Status(ctx context.Context) (types.StatusState, error) {
	var data buildData
	if err := b.client.getJSON(ctx, b.apiURL(), &data); err != nil {
		return "", err
	}
	if data.URL == "" {
		data.URL = b.data.URL
	}
	b.data = data
	return ResultState(data.Building, data.Result), nil
}

// Stop aborts the build
func (b *build) Stop(ctx context.Context) error {
	_, err := b.client.post(ctx, strings.TrimRight(b.data.URL, "/")+"/stop", nil)
	return err
}

func (b *build) apiURL() string {
	return strings.TrimRight(b.data.URL, "/") + "/api/json?tree=number,url,building,result"
}
