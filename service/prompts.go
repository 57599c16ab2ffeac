package service

import "strings"

// Prompt templates for the creative tasks. Placeholders are {name} tokens
// substituted with fillPrompt; the catalog is static.

const synopsisPrompt = `You are a professional Hollywood screenwriter. Write a synopsis (max. 2 paragraphs) with a commercial hook.
Return plain text, no headings.
Context:
- Idea: {idea}
- Premise: {premise}
- Theme: {theme}
- Genre: {genre}
- Subgenres: {subgenres}
`

const treatmentPrompt = `Write a short Treatment (6-10 paragraphs) covering the three-act arc.
- Tone: {tone}
- Audience: {audience}
- References: {references}
Logline: {logline}
Synopsis:
{synopsis}
`

const turningPointsPrompt = `Propose 5 Turning Points, each with a title and a description (2-3 sentences).
Base them on this treatment:
{treatment}
Return JSON: [{"id":"TP1","title":"...","description":"..."}...]
`

const characterPrompt = `Design a memorable character.
Seed name: {seed_name}. Role: {role}. Conflict: {conflict}. Goal: {goal}.
Return JSON with: id, name, bio, goal, conflict, arc.
`

const locationPrompt = `Create a cinematic location.
Seed name: {seed_name}. Genre: {genre}. Desired details: {notes}.
Return JSON with: id, name, details.
`

const scenePrompt = `Write a scene in Hollywood format.
Header: {header}
Story context: {context}
Dramatic goal: {goal}
Style: {style} | Creative level: {creative_level}
Return only the scene body with formatted lines (no JSON).
`

const dialoguePolishPrompt = `Rewrite the dialogue keeping intent and subtext, making it more natural and cinematic.
Text:
{raw}
Return only the new dialogue.
`

const reviewPrompt = `Act as a script doctor. Review the script and return a report with sections:
- Strengths
- Weaknesses
- Pacing/Structure
- Characters
- Dialogue
- Actionable recommendations (numbered list)
Text under review:
{text}
`

// fillPrompt substitutes {key} tokens. Values are passed as key/value pairs.
func fillPrompt(template string, pairs ...string) string {
	repl := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		repl = append(repl, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(repl...).Replace(template)
}
