package session

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	csrfSelector        = "meta[name=csrf-token]"
	userTokenSelector   = "meta[name=user-token]"
	locationSelector    = "#location"
	machineIDSelector   = "input.machine_pk"
	machineNameSelector = "span.js-reservation"
)

// ExtractionError reports which step of the page walk found nothing usable.
type ExtractionError struct {
	Step string
	// Element describes the node being inspected, when there is one.
	Element string
	Err     error
}

func (e *ExtractionError) Error() string {
	msg := e.Step
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Element != "" {
		msg = fmt.Sprintf("%s (element: %s)", msg, e.Element)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func extractionFailed(step string, el Element) *ExtractionError {
	e := &ExtractionError{Step: step}
	if el != nil {
		e.Element = el.Describe()
	}
	return e
}

// Extract reads the session state from a pay2wash page. A non-empty
// user-token meta tag is what marks the page as authenticated.
func Extract(doc Document) (Session, error) {
	csrfMeta, ok := doc.First(csrfSelector)
	if !ok {
		return nil, extractionFailed("csrf selector failed to select any element", nil)
	}
	csrf, ok := csrfMeta.Attr("content")
	if !ok {
		return nil, extractionFailed("csrf meta tag has no content attribute", csrfMeta)
	}

	userMeta, ok := doc.First(userTokenSelector)
	if !ok {
		return nil, extractionFailed("user token selector failed to select any element", nil)
	}
	userToken, ok := userMeta.Attr("content")
	if !ok {
		return nil, extractionFailed("user token meta tag has no content attribute", userMeta)
	}

	if userToken == "" {
		return &Unauthenticated{CSRF: csrf}, nil
	}

	token, err := strconv.ParseUint(userToken, 10, 32)
	if err != nil {
		e := extractionFailed("user token is not a non-negative integer", userMeta)
		e.Err = err
		return nil, e
	}

	locationInput, ok := doc.First(locationSelector)
	if !ok {
		return nil, extractionFailed("location selector failed to select any element", nil)
	}
	location, ok := locationInput.Attr("value")
	if !ok || location == "" {
		return nil, extractionFailed("#location has no value", locationInput)
	}

	mappings, err := extractMachineMappings(doc)
	if err != nil {
		return nil, err
	}

	return &Authenticated{
		CSRF:            csrf,
		UserToken:       uint32(token),
		Location:        location,
		MachineMappings: mappings,
	}, nil
}

// extractMachineMappings pairs every machine id input with the reservation
// label found under the same parent.
func extractMachineMappings(doc Document) (map[string]string, error) {
	mappings := make(map[string]string)
	for _, input := range doc.All(machineIDSelector) {
		id, ok := input.Attr("value")
		if !ok || id == "" {
			return nil, extractionFailed("machine id element has no value attribute", input)
		}

		parent, ok := input.Parent()
		if !ok {
			return nil, extractionFailed("machine id element has no parent", input)
		}

		label, ok := parent.First(machineNameSelector)
		if !ok {
			return nil, extractionFailed("machine name selector failed to select any element", parent)
		}

		text, ok := label.FirstText()
		if !ok {
			return nil, extractionFailed("machine name element has no text nodes", label)
		}
		name := strings.TrimSpace(text)
		if name == "" {
			return nil, extractionFailed("machine name is blank", label)
		}

		if existing, dup := mappings[id]; dup {
			e := extractionFailed("duplicate machine id", input)
			e.Err = fmt.Errorf("id %s already maps to %q", id, existing)
			return nil, e
		}
		mappings[id] = name
	}
	return mappings, nil
}
