// Copyright 2025 reclab Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"bufio"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/juju/errors"
	"github.com/reclab-io/reclab/common/util"
	"github.com/samber/lo"
)

var (
	userColumns      = []string{"user", "user_id", "userid", "uid"}
	itemColumns      = []string{"item", "item_id", "itemid", "iid", "movie", "movie_id", "movieid"}
	ratingColumns    = []string{"rating", "score", "value"}
	timestampColumns = []string{"timestamp", "time", "date", "ts"}
)

type csvOptions struct {
	separator string
	hasHeader bool
	filter    string
}

type Option func(*csvOptions)

// WithSeparator sets the field separator. The default is tab.
func WithSeparator(separator string) Option {
	return func(o *csvOptions) {
		o.separator = separator
	}
}

// WithHeader declares whether the first line names the columns. Without a
// header, columns are positional: user, item, rating and an optional
// trailing timestamp.
func WithHeader(hasHeader bool) Option {
	return func(o *csvOptions) {
		o.hasHeader = hasHeader
	}
}

// WithFilter sets a row filter expression over the variables user, item,
// rating and timestamp. Rows evaluating to false are dropped.
func WithFilter(filter string) Option {
	return func(o *csvOptions) {
		o.filter = filter
	}
}

// LoadFromCSV reads a rating log from a delimited text file.
func LoadFromCSV(path string, opts ...Option) (*Table, error) {
	options := csvOptions{separator: "\t", hasHeader: true}
	for _, opt := range opts {
		opt(&options)
	}
	// Compile filter expression
	var filterFunc *vm.Program
	if options.filter != "" {
		var err error
		filterFunc, err = expr.Compile(options.filter, expr.Env(map[string]any{
			"user":      "",
			"item":      "",
			"rating":    float64(0),
			"timestamp": time.Time{},
		}))
		if err != nil {
			return nil, errors.NewNotValid(err, "compile row filter")
		}
		if filterFunc.Node().Type().Kind() != reflect.Bool {
			return nil, errors.NotValidf("row filter must return bool")
		}
	}
	// Open file
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	// Read lines
	table := NewTable()
	userCol, itemCol, ratingCol, timestampCol := 0, 1, 2, 3
	lineNumber := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		lineNumber++
		// Resolve columns from header
		if options.hasHeader && lineNumber == 1 {
			userCol, itemCol, ratingCol, timestampCol = -1, -1, -1, -1
			for i, name := range strings.Split(line, options.separator) {
				name = strings.ToLower(strings.TrimSpace(name))
				switch {
				case lo.Contains(userColumns, name):
					userCol = i
				case lo.Contains(itemColumns, name):
					itemCol = i
				case lo.Contains(ratingColumns, name):
					ratingCol = i
				case lo.Contains(timestampColumns, name):
					timestampCol = i
				}
			}
			if userCol < 0 || itemCol < 0 || ratingCol < 0 {
				return nil, errors.NotValidf("header %q: user, item and rating columns", line)
			}
			continue
		}
		// Ignore empty line
		if line == "" {
			continue
		}
		fields := strings.Split(line, options.separator)
		if len(fields) <= userCol || len(fields) <= itemCol || len(fields) <= ratingCol {
			return nil, errors.NotValidf("line %d: expected at least %d fields, got %d",
				lineNumber, lo.Max([]int{userCol, itemCol, ratingCol})+1, len(fields))
		}
		userId := fields[userCol]
		itemId := fields[itemCol]
		rating, err := util.ParseFloat[float32](fields[ratingCol])
		if err != nil {
			return nil, errors.NotValidf("line %d: rating %q", lineNumber, fields[ratingCol])
		}
		// Parse timestamp
		var timestamp time.Time
		if timestampCol >= 0 && timestampCol < len(fields) && len(fields[timestampCol]) > 0 {
			timestamp, err = dateparse.ParseAny(fields[timestampCol])
			if err != nil {
				// dateparse recognizes unix timestamps at fixed digit counts only
				secs, errInt := strconv.ParseInt(fields[timestampCol], 10, 64)
				if errInt != nil {
					return nil, errors.NotValidf("line %d: timestamp %q", lineNumber, fields[timestampCol])
				}
				timestamp = time.Unix(secs, 0)
			}
		}
		// Evaluate filter expression
		if filterFunc != nil {
			result, err := expr.Run(filterFunc, map[string]any{
				"user":      userId,
				"item":      itemId,
				"rating":    float64(rating),
				"timestamp": timestamp,
			})
			if err != nil {
				return nil, errors.Annotatef(err, "evaluate row filter at line %d", lineNumber)
			}
			if !result.(bool) {
				continue
			}
		}
		table.AddWithTimestamp(userId, itemId, rating, timestamp)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return table, nil
}
