package catalog

// fillScript sets one control, found by name or id, and fires input and change events.
// Select and radio controls accept an option's visible text or value.
const fillScript = `({name, value}) => {
	const norm = (s) => (s || '').trim().toLowerCase();
	const quoted = (window.CSS && CSS.escape) ? CSS.escape(name) : name.replace(/"/g, '\\"');
	let els = Array.from(document.querySelectorAll('[name="' + quoted + '"]'));
	if (!els.length) {
		const byId = document.getElementById(name);
		if (byId) els = [byId];
	}
	if (!els.length) return {ok: false, error: 'field not found'};
	const el = els[0];
	const fire = (e) => {
		e.dispatchEvent(new Event('input', {bubbles: true}));
		e.dispatchEvent(new Event('change', {bubbles: true}));
	};
	const want = norm(value);
	if (el.tagName === 'SELECT') {
		const opt = Array.from(el.options).find(o => norm(o.text) === want || norm(o.value) === want);
		if (!opt) return {ok: false, error: 'option not found'};
		el.value = opt.value;
		fire(el);
		return {ok: true};
	}
	if (el.type === 'radio' || el.type === 'checkbox') {
		const match = els.find(e => norm(e.value) === want || (e.labels && e.labels[0] && norm(e.labels[0].innerText) === want));
		if (!match) return {ok: false, error: 'option not found'};
		if (!match.checked) match.click();
		return {ok: true};
	}
	el.focus();
	const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
	if (desc && desc.set) desc.set.call(el, value); else el.value = value;
	fire(el);
	el.blur();
	return {ok: true};
}`

// submitScript clicks the form's submit control. The click is deferred so the call returns before
// any navigation starts.
const submitScript = `() => {
	const candidates = Array.from(document.querySelectorAll('button[type="submit"], input[type="submit"], button, [role="button"]'));
	const btn = candidates.find(b => {
		const t = (b.innerText || b.value || b.getAttribute('aria-label') || '').trim().toLowerCase();
		return b.type === 'submit' || /^(submit|apply|send)( application)?$/.test(t) || t === 'submit application';
	});
	if (!btn || btn.disabled) return {clicked: false, label: ''};
	setTimeout(() => btn.click(), 0);
	return {clicked: true, label: (btn.innerText || btn.value || '').trim()};
}`

// settleScript resolves after the given number of milliseconds.
const settleScript = `(ms) => new Promise(resolve => setTimeout(() => resolve(true), ms))`
