// Package extract turns one chat message into a provisioning request.
//
// Extraction is a single deterministic pass over static phrase tables. Every
// stage takes the first match and never backtracks:
//
//  1. resource type (no match ends extraction with one clarifying question)
//  2. name
//  3. location
//  4. type-specific parameters (VM, storage account, web app, container)
//  5. tags
//
// Slots that cannot be filled are reported as questions, in the order name,
// location, then type-specific. The dialogue layer asks them in that order.
package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// Questions asked for missing slots.
const (
	QuestionResourceType = "I couldn't determine what type of resource you want to create. Please specify the resource type."
	QuestionName         = "What would you like to name this resource?"
	QuestionLocation     = "Which Azure region would you prefer?"
	QuestionVMType       = "What type of VM would you like? (Windows or Linux)"
	QuestionUsername     = "What admin username would you like to use?"
	QuestionRuntime      = "What runtime would you like? (Node.js, Python, .NET, Java, PHP, Ruby)"
)

// Draft is the full result of one extraction pass.
type Draft struct {
	// Request holds every slot that was found. It is nil only when no
	// resource type could be detected.
	Request *resource.Request
	// Missing lists the questions for unfilled slots, in asking order.
	Missing []string
}

// Ambiguous reports whether extraction stopped at the resource-type stage.
func (d Draft) Ambiguous() bool {
	return d.Request == nil
}

// Complete reports whether every mandatory slot was filled.
func (d Draft) Complete() bool {
	return d.Request != nil && len(d.Missing) == 0
}

// Extract returns a complete request and no questions, or nil and the
// questions for the slots that are still missing.
func Extract(text, userID string) (*resource.Request, []string) {
	d := Parse(text, userID, time.Now())
	if d.Complete() {
		return d.Request, nil
	}
	return nil, d.Missing
}

// Parse runs the extraction pass and keeps the partially filled request so
// follow-up answers can complete it.
func Parse(text, userID string, now time.Time) Draft {
	typ, ok := detectType(text)
	if !ok {
		return Draft{Missing: []string{QuestionResourceType}}
	}

	req := resource.NewRequest(typ, userID, now)
	var missing []string

	if name, ok := extractName(text); ok {
		req.Name = name
	} else {
		missing = append(missing, QuestionName)
	}

	if loc, ok := extractLocation(text); ok {
		req.Location = loc
	} else {
		missing = append(missing, QuestionLocation)
	}

	switch typ {
	case resource.TypeVirtualMachine:
		missing = append(missing, extractVM(text, req)...)
	case resource.TypeStorageAccount:
		extractStorage(text, req)
	case resource.TypeWebApp:
		missing = append(missing, extractWebApp(text, req)...)
	case resource.TypeContainerInstance:
		extractContainer(text, req)
	}

	extractTags(text, req)

	return Draft{Request: req, Missing: missing}
}

// DetectType exposes the resource-type stage on its own.
func DetectType(text string) (resource.Type, bool) {
	return detectType(text)
}

func detectType(text string) (resource.Type, bool) {
	lower := strings.ToLower(text)
	for _, e := range typeTable {
		for _, p := range e.phrases {
			if isShortPhrase(p) {
				if containsWord(lower, p) {
					return e.typ, true
				}
				continue
			}
			if strings.Contains(lower, p) {
				return e.typ, true
			}
		}
	}
	return "", false
}

func extractName(text string) (string, bool) {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func extractLocation(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, r := range regionTable {
		for _, a := range r.aliases {
			if strings.Contains(lower, a) {
				return regionDisplay(r.key), true
			}
		}
	}
	return "", false
}

// extractVM fills OS family, size and admin username. Returns the questions
// for whichever of OS family and username is missing.
func extractVM(text string, req *resource.Request) []string {
	var missing []string
	lower := strings.ToLower(text)

	if os, ok := detectOS(lower); ok {
		req.Parameters[resource.ParamVMType] = string(os)
	}
	if size, ok := detectVMSize(lower); ok {
		req.Parameters[resource.ParamVMSize] = size
	}
	if m := usernamePattern.FindStringSubmatch(text); m != nil {
		req.Parameters[resource.ParamAdminUsername] = m[1]
	}

	if _, ok := req.Parameters[resource.ParamVMType]; !ok {
		missing = append(missing, QuestionVMType)
	}
	if _, ok := req.Parameters[resource.ParamAdminUsername]; !ok {
		missing = append(missing, QuestionUsername)
	}
	return missing
}

func detectOS(lower string) (resource.OSType, bool) {
	switch {
	case containsAnyWord(lower, windowsWords):
		return resource.OSWindows, true
	case containsAnyWord(lower, linuxWords):
		return resource.OSLinux, true
	}
	return "", false
}

// detectVMSize maps a memory figure onto the size ladder; without one it
// looks for an explicit size code. A memory figure wins when both appear.
func detectVMSize(lower string) (string, bool) {
	if m := ramPattern.FindStringSubmatch(lower); m != nil {
		if gb, err := strconv.Atoi(m[1]); err == nil {
			for _, step := range ramLadder {
				if gb <= step.maxGB {
					return step.size, true
				}
			}
			return largestVMSize, true
		}
	}
	for _, tier := range vmSizeTiers {
		for _, code := range tier.codes {
			if strings.Contains(lower, code) {
				return "Standard_" + strings.ToUpper(code), true
			}
		}
	}
	return "", false
}

// extractStorage always succeeds: absent keywords select the defaults.
func extractStorage(text string, req *resource.Request) {
	lower := strings.ToLower(text)

	sku := resource.StorageStandardLRS
	switch {
	case strings.Contains(lower, "premium"):
		sku = resource.StoragePremiumLRS
	case strings.Contains(lower, "geo") || strings.Contains(lower, "redundant"):
		sku = resource.StorageStandardGRS
	}
	req.Parameters[resource.ParamSKU] = string(sku)

	tier := resource.AccessHot
	if strings.Contains(lower, "cool") {
		tier = resource.AccessCool
	}
	req.Parameters[resource.ParamAccessTier] = string(tier)
}

func extractWebApp(text string, req *resource.Request) []string {
	lower := strings.ToLower(text)

	plan := defaultPlan
	for _, p := range planTable {
		if strings.Contains(lower, p.word) {
			plan = p.plan
			break
		}
	}
	req.Parameters[resource.ParamPlan] = plan

	if rt, ok := detectRuntime(lower); ok {
		req.Parameters[resource.ParamRuntime] = string(rt)
		return nil
	}
	return []string{QuestionRuntime}
}

func detectRuntime(lower string) (resource.Runtime, bool) {
	for _, r := range runtimeTable {
		for _, w := range r.words {
			if strings.Contains(lower, w) {
				return r.runtime, true
			}
		}
	}
	return "", false
}

// extractContainer fills image and port, falling back to defaults.
func extractContainer(text string, req *resource.Request) {
	image := defaultContainerImage
	if m := imagePattern.FindStringSubmatch(text); m != nil {
		image = strings.TrimRight(m[1], ".,;:")
	}
	req.Parameters[resource.ParamImage] = image

	port := defaultContainerPort
	if m := portPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 65535 {
			port = n
		}
	}
	req.Parameters[resource.ParamPort] = port
}

func extractTags(text string, req *resource.Request) {
	lower := strings.ToLower(text)
	for _, e := range environmentTable {
		if containsAnyWord(lower, e.words) {
			req.Tags[resource.TagEnvironment] = e.value
			break
		}
	}
	if m := projectPattern.FindStringSubmatch(text); m != nil {
		req.Tags[resource.TagProject] = m[1]
	}
}
