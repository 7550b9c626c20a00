package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// POCService chains directory and governance operations into the
// Internet Access governance proof-of-concept workflow.
type POCService struct {
	eid *EIDService
	iga *IGAService

	// retryBase is the first retry delay; later attempts double it.
	// Tests shorten it.
	retryBase  time.Duration
	maxRetries int
	now        func() time.Time
}

// NewPOCService creates the POC automation service.
func NewPOCService(eid *EIDService, iga *IGAService) *POCService {
	return &POCService{
		eid:        eid,
		iga:        iga,
		retryBase:  5 * time.Second,
		maxRetries: 3,
		now:        time.Now,
	}
}

// stepOutcome records one step of the workflow for the execution
// summary.
type stepOutcome struct {
	result  Result
	ok      bool
	retries int
	elapsed time.Duration
}

// GovernInternetAccessPOC provisions the Internet Access governance
// flow in four steps: create a POC users group, create an access
// catalog, create an access package inside it, and add the group as a
// package resource. Each step is retried with exponential backoff and
// a failure stops the workflow.
func (s *POCService) GovernInternetAccessPOC(ctx context.Context) Result {
	slog.Info("GovernInternetAccessPOC called")
	start := s.now()

	data := map[string]any{
		"group_id":               nil,
		"catalog_id":             nil,
		"access_package_id":      nil,
		"resource_assignment_id": nil,
		"steps_completed":        0,
		"total_steps":            4,
		"errors":                 []map[string]any{},
	}
	summary := map[string]any{
		"steps":         []map[string]any{},
		"total_retries": 0,
		"final_status":  "in_progress",
	}
	var progress []string
	note := func(format string, args ...any) {
		progress = append(progress, fmt.Sprintf(format, args...))
	}

	record := func(stepNum int, name string, out stepOutcome) {
		steps := summary["steps"].([]map[string]any)
		status := "success"
		if !out.ok {
			status = "failed"
		}
		summary["steps"] = append(steps, map[string]any{
			"step":           stepNum,
			"name":           name,
			"execution_time": out.elapsed.Seconds(),
			"retry_count":    out.retries,
			"status":         status,
		})
		summary["total_retries"] = summary["total_retries"].(int) + out.retries
	}
	failed := func(stepNum int, out stepOutcome) Result {
		msg, _ := out.result["message"].(string)
		note("Failed: %s", msg)
		data["errors"] = append(data["errors"].([]map[string]any), map[string]any{
			"step":  stepNum,
			"error": msg,
		})
		summary["final_status"] = "failed"
		summary["total_execution_time"] = s.now().Sub(start).Seconds()
		return Result{
			"status":            "error",
			"message":           msg,
			"progress":          progress,
			"data":              data,
			"execution_summary": summary,
		}
	}

	// Step 1: create the POC users group.
	note("Step 1: Creating Internet Access users group POC-InternetAccessUsers")
	out := s.runStep(ctx, func(ctx context.Context) Result {
		return s.eid.CreateUserGroups(ctx, CreateUserGroupsParams{
			GroupName: "InternetAccessUsers",
			AddPrefix: true,
		})
	})
	record(1, "Create Group", out)
	group, _ := out.result["group"].(map[string]any)
	groupID, _ := group["id"].(string)
	if !out.ok || groupID == "" {
		return failed(1, out)
	}
	data["group_id"] = groupID
	data["steps_completed"] = 1
	note("Group created: %s", groupID)

	// Step 2: create the access catalog.
	catalogName := "POC-Internet Access Governance-" + s.now().Format("20060102-150405")
	note("Step 2: Creating access catalog %s", catalogName)
	out = s.runStep(ctx, func(ctx context.Context) Result {
		return s.iga.CreateAccessCatalog(ctx, catalogName,
			"Internet Access Governance POC Resources", "published", false)
	})
	record(2, "Create Catalog", out)
	catalogID, _ := out.result["catalogId"].(string)
	if !out.ok || catalogID == "" {
		return failed(2, out)
	}
	data["catalog_id"] = catalogID
	data["steps_completed"] = 2
	note("Catalog created: %s", catalogID)

	// Step 3: create the access package.
	note("Step 3: Creating access package")
	out = s.runStep(ctx, func(ctx context.Context) Result {
		return s.iga.CreateAccessPackage(ctx, catalogID,
			"POC - Internet Access Governance", "Internet Access Governance POC Package")
	})
	record(3, "Create Package", out)
	packageID, _ := out.result["accessPackageId"].(string)
	if !out.ok || packageID == "" {
		return failed(3, out)
	}
	data["access_package_id"] = packageID
	data["steps_completed"] = 3
	note("Access package created: %s", packageID)

	// Step 4: add the group as a package resource.
	note("Step 4: Adding group as resource")
	out = s.runStep(ctx, func(ctx context.Context) Result {
		return s.iga.AddResourceGroupToPackage(ctx, catalogID, packageID, groupID)
	})
	record(4, "Add Resource", out)
	if !out.ok {
		return failed(4, out)
	}
	if d, ok := out.result["data"].(map[string]any); ok {
		data["resource_assignment_id"] = d["roleId"]
	}
	data["steps_completed"] = 4
	note("Resource added to package")

	total := s.now().Sub(start)
	summary["final_status"] = "success"
	summary["total_execution_time"] = total.Seconds()
	note("POC setup complete in %.2fs with %d retries", total.Seconds(), summary["total_retries"])

	return Result{
		"status":            "success",
		"message":           "Internet Access governance POC setup complete",
		"progress":          progress,
		"data":              data,
		"execution_summary": summary,
	}
}

// runStep executes fn, retrying on non-success results with
// exponential backoff starting at retryBase.
func (s *POCService) runStep(ctx context.Context, fn func(context.Context) Result) stepOutcome {
	start := s.now()
	var result Result
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryBase * time.Duration(1<<(attempt-1))
			slog.Info("retrying POC step", "attempt", attempt, "delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return stepOutcome{
					result:  errorf("Cancelled during retry: %v", err),
					retries: attempt,
					elapsed: s.now().Sub(start),
				}
			}
		}

		result = fn(ctx)
		if result["status"] == "success" {
			return stepOutcome{result: result, ok: true, retries: attempt, elapsed: s.now().Sub(start)}
		}
		slog.Warn("POC step failed", "attempt", attempt, "message", result["message"])
	}
	return stepOutcome{result: result, retries: s.maxRetries, elapsed: s.now().Sub(start)}
}
