// Package eqdoc synthesizes a complete LaTeX document from a raw equation
// list, for clients that submit equations rather than full sources.
package eqdoc

import (
	"fmt"
	"strings"
)

// DefaultTitle is used when the request carries no title.
const DefaultTitle = "Equations"

// Delimiter separates equations in the raw submission.
const Delimiter = "**"

const preamble = `\documentclass[11pt]{article}
\usepackage[utf8]{inputenc}
\usepackage[T1]{fontenc}
\usepackage[a4paper,margin=2.2cm]{geometry}
\usepackage{amsmath, amssymb, amsfonts}
\usepackage{bm}
\usepackage{mathtools}
\usepackage{lmodern}
\usepackage{microtype}
\usepackage{relsize}
\usepackage{upgreek}
\usepackage{xcolor}
\usepackage{hyperref}
\hypersetup{colorlinks=true,linkcolor=black,urlcolor=blue}
\setlength{\parskip}{0.6em}
\setlength{\parindent}{0pt}
`

// Request describes an equation rendering submission.
type Request struct {
	EquationsRaw     string `json:"equations_raw"`
	Title            string `json:"title"`
	PageBreakBetween bool   `json:"page_break_between"`
}

// Split extracts the individual equations from the raw submission.
func Split(raw string) []string {
	var equations []string
	for _, part := range strings.Split(raw, Delimiter) {
		if eq := strings.Trim(part, "* \n"); eq != "" {
			equations = append(equations, eq)
		}
	}
	return equations
}

// Build synthesizes a compilable LaTeX document. It fails only when the
// submission contains no equations at all.
func Build(req Request) ([]byte, error) {
	if strings.TrimSpace(req.EquationsRaw) == "" {
		return nil, fmt.Errorf("equations_raw must not be empty")
	}
	equations := Split(req.EquationsRaw)
	if len(equations) == 0 {
		return nil, fmt.Errorf("no equations found with delimiter %q", Delimiter)
	}

	title := req.Title
	if title == "" {
		title = DefaultTitle
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\\begin{document}\n\\begin{center}\n{\\LARGE \\textbf{")
	b.WriteString(escapeTitle(title))
	b.WriteString("}}\n\\end{center}\n\\vspace{1em}\n")

	for i, eq := range equations {
		fmt.Fprintf(&b, "\\textbf{Equation %d}\n\n", i+1)
		b.WriteString("\\noindent\n")
		b.WriteString(eq)
		b.WriteString("\n\n\\vspace{0.4em}\n\\textbf{LaTeX literal:}\n\\begin{verbatim}\n")
		b.WriteString(eq)
		b.WriteString("\n\\end{verbatim}\n\\vspace{0.8em}\n")
		if req.PageBreakBetween && i < len(equations)-1 {
			b.WriteString("\\clearpage\n")
		}
	}

	b.WriteString("\\end{document}\n")
	return []byte(b.String()), nil
}

// escapeTitle neutralizes the characters TeX treats specially in plain text.
// Equations are intentionally passed through verbatim.
func escapeTitle(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\textbackslash{}",
		"&", "\\&",
		"%", "\\%",
		"$", "\\$",
		"#", "\\#",
		"_", "\\_",
		"{", "\\{",
		"}", "\\}",
		"~", "\\textasciitilde{}",
		"^", "\\textasciicircum{}",
	)
	return replacer.Replace(s)
}
