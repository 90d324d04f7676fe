// Package prompt holds the text sent to every vision provider.
package prompt

import (
    "fmt"
    "strings"
)

// SystemInstruction is the JSON contract every provider is asked to follow.
const SystemInstruction = `Return ONLY valid JSON with this schema:
{"foodItems":[{"name":"...","servingDescription":"...","nutrition":{"calories":0,"proteinGrams":0,"carbsGrams":0,"fatGrams":0},"source":"ai"}],"shoppingList":[{"name":"...","quantity":1,"unit":"pieza"}],"notes":"..."}`

const taskTemplate = `Identify every food and drink visible in the photo. Estimate one serving of each and its calories, protein, carbs and fat in grams. Suggest the groceries needed to prepare the meal again as shoppingList. Write notes and names in Spanish.
Extra instruction from the user: %s`

// NoInstruction replaces a blank user instruction.
const NoInstruction = "none"

// UserPrompt embeds the trimmed user instruction into the task description.
func UserPrompt(extra string) string {
    extra = strings.TrimSpace(extra)
    if extra == "" { extra = NoInstruction }
    return fmt.Sprintf(taskTemplate, extra)
}
