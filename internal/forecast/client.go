package forecast

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Prediction is the demand-forecast API's response for a drug: one predicted
// demand value per month. Error and Suggestion are populated when the model
// has no series for the drug.
type Prediction struct {
	Drug        string    `json:"drug,omitempty"`
	Months      []string  `json:"months,omitempty"`
	Predictions []float64 `json:"predictions,omitempty"`
	Error       string    `json:"error,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// Client is a thin wrapper around the external forecasting HTTP API.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// Predict fetches the demand forecast for a drug. The name is normalized the
// way the API expects: trimmed, with runs of whitespace collapsed.
func (c *Client) Predict(ctx context.Context, drug string) (Prediction, error) {
	drug = normalizeDrugName(drug)
	if drug == "" {
		return Prediction{}, fmt.Errorf("empty drug name")
	}

	var prediction Prediction
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&prediction).
		SetError(&prediction).
		Get("/predict/" + url.PathEscape(drug))
	if err != nil {
		return Prediction{}, fmt.Errorf("forecast api: %w", err)
	}
	if resp.IsError() && prediction.Error == "" {
		return Prediction{}, fmt.Errorf("forecast api: status %d", resp.StatusCode())
	}
	return prediction, nil
}

type catalog struct {
	AvailableDrugs []string `json:"available_drugs"`
}

// AvailableDrugs lists the drug names the forecasting model has a demand
// series for.
func (c *Client) AvailableDrugs(ctx context.Context) ([]string, error) {
	var result catalog
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/predict")
	if err != nil {
		return nil, fmt.Errorf("forecast api: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("forecast api: status %d", resp.StatusCode())
	}
	return result.AvailableDrugs, nil
}

func normalizeDrugName(drug string) string {
	return strings.Join(strings.Fields(drug), " ")
}
