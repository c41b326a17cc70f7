package browser

import (
	"fmt"
	"strings"
)

// stealthScript returns JavaScript registered to run before any page script.
// It masks the usual automation checks and pins navigator.languages to the configured locale.
func stealthScript(locale string) string {
	languages := []string{fmt.Sprintf("'%s'", locale)}
	if base, _, ok := strings.Cut(locale, "-"); ok {
		languages = append(languages, fmt.Sprintf("'%s'", base))
	}

	return `
		Object.defineProperty(navigator, 'webdriver', {
			get: () => undefined,
			configurable: true
		});

		Object.defineProperty(navigator, 'plugins', {
			get: () => {
				const plugins = [
					{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
					{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
					{ name: 'Native Client', filename: 'internal-nacl-plugin' }
				];
				plugins.length = 3;
				return plugins;
			},
			configurable: true
		});

		Object.defineProperty(navigator, 'languages', {
			get: () => [` + strings.Join(languages, ", ") + `],
			configurable: true
		});

		Object.defineProperty(navigator, 'hardwareConcurrency', {
			get: () => 8,
			configurable: true
		});

		if (!window.chrome) window.chrome = {};
		window.chrome.runtime = { id: undefined };

		const originalQuery = window.navigator.permissions.query;
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications' ?
				Promise.resolve({ state: Notification.permission }) :
				originalQuery(parameters)
		);

		const getParameter = WebGLRenderingContext.prototype.getParameter;
		WebGLRenderingContext.prototype.getParameter = function(parameter) {
			if (parameter === 37445) return 'Intel Inc.';
			if (parameter === 37446) return 'Intel Iris OpenGL Engine';
			return getParameter.call(this, parameter);
		};
	`
}
