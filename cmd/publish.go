// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.
package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/net/context"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	sheets "google.golang.org/api/sheets/v4"
)

var publishFiles []string

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Appends result CSV files to a Google spreadsheet",
	Long: `Appends the rows of each result CSV file, without its header, to the
spreadsheet range configured for its file name under sheets.ranges`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		srv, err := getSheetsClient(ctx)
		if err != nil {
			return err
		}
		for _, f := range publishFiles {
			if err := appendDataToSpreadsheet(ctx, srv, f); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().StringSliceVar(&publishFiles, "files", nil, "comma separated result CSV files")
	_ = publishCmd.MarkFlagRequired("files")
	viper.SetDefault("sheets.credentials", "./credentials.json")
	viper.SetDefault("sheets.token", "./token.json")
	rootCmd.AddCommand(publishCmd)
}

// Retrieve a token, saves the token, then returns the generated client.
func getClient(ctx context.Context, config *oauth2.Config) (*http.Client, error) {
	// The token file stores the user's access and refresh tokens, and is
	// created automatically when the authorization flow completes for the first
	// time.
	tokFile := viper.GetString("sheets.token")
	tok, err := tokenFromFile(tokFile)
	if err != nil {
		tok, err = getTokenFromWeb(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokFile, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

// Request a token from the web, then returns the retrieved token.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, errors.Wrap(err, "unable to read authorization code")
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, errors.Wrap(err, "unable to retrieve token from web")
	}
	return tok, nil
}

// Retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// Saves a token to a file path.
func saveToken(path string, token *oauth2.Token) error {
	log.Printf("Saving credential file to: %s", path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "unable to cache oauth token")
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func getSheetsClient(ctx context.Context) (*sheets.Service, error) {
	b, err := os.ReadFile(viper.GetString("sheets.credentials"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read client secret file")
	}

	// If modifying these scopes, delete your previously saved token.
	config, err := google.ConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse client secret file to config")
	}
	client, err := getClient(ctx, config)
	if err != nil {
		return nil, err
	}
	srv, err := sheets.New(client)
	return srv, errors.Wrap(err, "unable to create Sheets client")
}

// csvValues reads a CSV file without its header row.
func csvValues(path string) ([][]interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing %q", path)
	}
	if len(records) == 0 {
		return nil, nil
	}
	s := make([][]interface{}, len(records)-1)
	for i, v := range records[1:] {
		s[i] = make([]interface{}, len(v))
		for j, w := range v {
			s[i][j] = w
		}
	}
	return s, nil
}

// appendDataToSpreadsheet appends the rows of a result CSV file to the range
// configured for its name.
func appendDataToSpreadsheet(ctx context.Context, srv *sheets.Service, path string) error {
	name := filepath.Base(path)
	// File names hold dots, which viper reads as key separators.
	ssRange := viper.GetStringMapString("sheets.ranges")[strings.ToLower(name)]
	if ssRange == "" {
		log.Warnf("No range configured for %s; cannot log to spreadsheet", name)
		return nil
	}
	ssID := viper.GetString("sheets.spreadsheet_id")
	if ssID == "" {
		return errors.New("sheets.spreadsheet_id is not set")
	}

	s, err := csvValues(path)
	if err != nil {
		return err
	}
	if len(s) == 0 {
		log.Warnf("No rows in %s", path)
		return nil
	}
	vr := sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         s,
	}
	log.Printf("Appending %d rows of %s to %s", len(s), name, ssRange)
	_, err = srv.Spreadsheets.Values.Append(ssID, ssRange, &vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return errors.Wrapf(err, "appending %s", path)
}
