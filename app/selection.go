package app

import (
	stderrors "errors"
	"fmt"
	"strings"

	"logitdash/domain/core"
	"logitdash/domain/dataset"
	"logitdash/domain/model"
	"logitdash/internal/errors"
)

// Messages shown in place of outputs while the selection is incomplete
const (
	MsgSelectResponse    = "Please select a response variable"
	MsgSelectExplanatory = "Please select at least one explanatory variable"
	MsgGenerateCode      = "Press \"Generate code\" to render the code for the current selection"
)

// ResponseSummary is the text of the response selection output
func ResponseSummary(response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return MsgSelectResponse
	}
	return fmt.Sprintf("Selected response variable: %q", response)
}

// ExplanatorySummary is the text of the explanatory selection output
func ExplanatorySummary(explanatory []string) string {
	names := core.ColumnNames(core.ColumnIDs(explanatory))
	if len(names) == 0 {
		return MsgSelectExplanatory
	}
	return fmt.Sprintf("Selected explanatory variables: %q", strings.Join(names, ", "))
}

// BuildRequest turns raw picker values into a validated request. Every
// failure is a SELECTION_ERROR whose message is worded for the user.
func BuildRequest(table *dataset.Table, response string, explanatory []string, level string) (model.Request, error) {
	req := model.NewRequest(response, explanatory, level)

	var err error
	if table == nil {
		err = req.CheckSelection()
	} else {
		err = req.Validate(table)
	}
	if err != nil {
		return req, errors.SelectionError(selectionMessage(req, table, err), err)
	}
	return req, nil
}

func selectionMessage(req model.Request, table *dataset.Table, err error) string {
	switch {
	case stderrors.Is(err, core.ErrEmptyResponse):
		return MsgSelectResponse
	case stderrors.Is(err, core.ErrNoTerms):
		return MsgSelectExplanatory
	case stderrors.Is(err, core.ErrResponseInTerms):
		return fmt.Sprintf("Response variable %q cannot also be an explanatory variable", req.Response)
	case stderrors.Is(err, core.ErrDuplicateTerm):
		return "Each explanatory variable can be selected only once"
	case stderrors.Is(err, core.ErrUnknownColumn):
		for _, id := range req.Columns() {
			if !table.Has(id) {
				return fmt.Sprintf("Variable %q is not a column of dataset %q", id, table.Name())
			}
		}
	}
	return "Invalid variable selection: " + err.Error()
}
