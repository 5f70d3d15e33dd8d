package main

import (
	"context"
	"errors"
	"fmt"
)

// ControlRole names a control the agents look for
type ControlRole string

const (
	RoleEmail     ControlRole = "email input"
	RolePassword  ControlRole = "password input"
	RoleSubmit    ControlRole = "submit control"
	RoleLinkInput ControlRole = "link input"
	RoleClose     ControlRole = "close control"
)

// Strategy is one way of locating a control: a CSS selector, optionally
// narrowed to elements whose text matches a JS regex
type Strategy struct {
	Selector    string
	TextPattern string
}

func (s Strategy) String() string {
	if s.TextPattern == "" {
		return s.Selector
	}
	return fmt.Sprintf("%s /%s/", s.Selector, s.TextPattern)
}

// controlStrategies lists, per role, the strategies to try, most specific first
var controlStrategies = map[ControlRole][]Strategy{
	RoleEmail: {
		{Selector: `input[type="email"]`},
		{Selector: `input[name*="email" i]`},
		{Selector: `input[placeholder*="email" i]`},
		{Selector: `input[id*="email" i]`},
		{Selector: `input[name*="邮箱"]`},
		{Selector: `input[placeholder*="邮箱"]`},
		{Selector: `input[autocomplete="email"]`},
	},
	RolePassword: {
		{Selector: `input[type="password"]`},
		{Selector: `input[name*="password" i]`},
		{Selector: `input[placeholder*="password" i]`},
		{Selector: `input[id*="password" i]`},
		{Selector: `input[name*="密码"]`},
		{Selector: `input[placeholder*="密码"]`},
		{Selector: `input[autocomplete="current-password"]`},
		{Selector: `input[autocomplete="new-password"]`},
	},
	RoleSubmit: {
		{Selector: `button[type="submit"].supabase-auth-ui_ui-button`, TextPattern: "注册"},
		{Selector: `button[class*="supabase-auth-ui_ui-button"]`, TextPattern: "注册"},
		{Selector: `button[type="submit"]`, TextPattern: "注册|[Ss]ign [Uu]p"},
		{Selector: "button", TextPattern: "注册|[Ss]ign [Uu]p"},
		{Selector: "button", TextPattern: "登录|[Ll]ogin"},
		{Selector: `input[type="submit"][value*="注册"]`},
		{Selector: `input[type="submit"][value*="sign" i]`},
		{Selector: `input[type="submit"][value*="登录"]`},
		{Selector: `input[type="submit"][value*="login" i]`},
		{Selector: `button[type="submit"]`},
		{Selector: `input[type="submit"]`},
	},
	RoleLinkInput: {
		{Selector: `textarea[data-slot="textarea"][placeholder*="Enter video/audio links"]`},
		{Selector: `textarea[placeholder*="Enter video/audio links"]`},
		{Selector: `textarea[placeholder*="supports batch input"]`},
		{Selector: `textarea.border-input[placeholder*="video"]`},
		{Selector: `textarea.border-input[placeholder*="audio"]`},
		{Selector: `textarea.border-input[placeholder*="links"]`},
		{Selector: `textarea[data-slot="textarea"]`},
		{Selector: "textarea.resize-none"},
		{Selector: `textarea[placeholder*="Enter"]`},
		{Selector: "div.relative textarea"},
		{Selector: ".w-full textarea"},
	},
	RoleClose: {
		{Selector: `div[role="dialog"] button:has(svg.lucide-x)`},
		{Selector: `div[role="dialog"] button:has(span.sr-only)`, TextPattern: "Close"},
		{Selector: `div[data-state="open"] button:has(svg.lucide-x)`},
		{Selector: `button[class*="absolute"][class*="right"][class*="top"]:has(svg)`},
		{Selector: `button[aria-label*="close" i]`},
		{Selector: `button[title*="close" i]`},
	},
}

// Strategies returns the ranked strategies for role
func Strategies(role ControlRole) []Strategy {
	return controlStrategies[role]
}

// FindControl tries the strategies for role in order and returns the first
// visible match. Lookup errors other than a miss are kept and reported only
// when nothing matches.
func FindControl(ctx context.Context, page Page, role ControlRole) (Element, error) {
	strategies := Strategies(role)
	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies for %s", ErrControlNotFound, role)
	}

	var lookupErrs []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		el, err := page.Query(ctx, s.Selector, s.TextPattern)
		if err == nil {
			return el, nil
		}
		if !errors.Is(err, ErrControlNotFound) {
			lookupErrs = append(lookupErrs, err)
		}
	}

	if len(lookupErrs) > 0 {
		return nil, fmt.Errorf("%w: %s (%v)", ErrControlNotFound, role, errors.Join(lookupErrs...))
	}
	return nil, fmt.Errorf("%w: %s", ErrControlNotFound, role)
}

// HasControl reports whether any strategy for role currently matches
func HasControl(ctx context.Context, page Page, role ControlRole) bool {
	_, err := FindControl(ctx, page, role)
	return err == nil
}
